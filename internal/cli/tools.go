package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/forPelevin/audiojournal/internal/domain/chunker"
	"github.com/forPelevin/audiojournal/internal/domain/merger"
	"github.com/forPelevin/audiojournal/internal/domain/segmenter"
	"github.com/forPelevin/audiojournal/internal/ports/adapters/fixture"
	"github.com/forPelevin/audiojournal/internal/types"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newChunkCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chunk <wav>",
		Short: "Split a 16-bit PCM WAV at long silences",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := args[0]
			outDir, _ := cmd.Flags().GetString("out")
			if outDir == "" {
				stem := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
				outDir = filepath.Join(a.cfg.Paths.Processing, "chunks", stem)
			}
			chunks, err := chunker.New(a.cfg.ChunkerConfig()).Split(in, outDir)
			if err != nil {
				return err
			}
			a.log.WithFields(logrus.Fields{"input": in, "chunks": len(chunks)}).Info("audio chunked")
			w := cmd.OutOrStdout()
			for _, c := range chunks {
				fmt.Fprintf(w, "%s\t%.3f\t%.3f\n", c.Path, c.StartTime, c.EndTime)
			}
			return nil
		},
	}
	cmd.Flags().String("out", "", "Directory for chunk files")
	return cmd
}

func newSegmentCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "segment <utterances.json>",
		Short: "Group transcript utterances into segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			utts, err := fixture.Parse(b)
			if err != nil {
				return err
			}
			source, _ := cmd.Flags().GetString("source")
			if source == "" {
				source = filepath.Base(args[0])
			}
			res := segmenter.New(a.cfg.SegmenterConfig()).Segment(utts, source)
			a.log.WithFields(logrus.Fields{
				"segments":           len(res.Segments),
				"dropped_groups":     len(res.Dropped),
				"dropped_utterances": res.DroppedUtterances(),
			}).Info("utterances segmented")
			if res.Segments == nil {
				res.Segments = []types.Segment{}
			}
			if res.Dropped == nil {
				res.Dropped = []segmenter.Dropped{}
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"segments": res.Segments,
				"dropped":  res.Dropped,
			})
		},
	}
	cmd.Flags().String("source", "", "Source recording name used in segment ids")
	return cmd
}

func newMergeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "merge <classified.json>",
		Short: "Merge adjacent same-scene classified segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var segs []types.ClassifiedSegment
			if err := json.Unmarshal(b, &segs); err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}
			mc, err := a.cfg.MergerConfig()
			if err != nil {
				return err
			}
			res := merger.New(mc).Merge(segs)
			a.log.WithFields(logrus.Fields{
				"units":    len(res.Units),
				"merged":   res.Merged(),
				"rejected": len(res.Rejected),
			}).Info("segments merged")
			units := res.Units
			if units == nil {
				units = []types.Unit{}
			}
			rejected := res.Rejected
			if rejected == nil {
				rejected = []merger.RejectedRun{}
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"units":    units,
				"rejected": rejected,
			})
		},
	}
}

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := a.cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
