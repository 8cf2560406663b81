package openaicompat

import (
	"fmt"
	"net/url"
	"strings"
)

var providerBaseURLs = map[string]string{
	"deepseek":   "https://api.deepseek.com/v1",
	"openai":     "https://api.openai.com/v1",
	"openrouter": "https://openrouter.ai/api/v1",
}

var defaultAllowedHosts = map[string]struct{}{
	"api.deepseek.com":  {},
	"api.openai.com":    {},
	"openrouter.ai":     {},
	"api.openrouter.ai": {},
}

// DefaultBaseURL returns the chat-completions root for a known provider,
// or "" when the provider has no built-in endpoint.
func DefaultBaseURL(provider string) string {
	return providerBaseURLs[strings.ToLower(strings.TrimSpace(provider))]
}

func normalizeBaseURL(baseURL, provider string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL(provider)
	}
	return strings.TrimRight(baseURL, "/")
}

func ValidateBaseURL(baseURL, provider string, allowedHosts []string) error {
	baseURL = normalizeBaseURL(baseURL, provider)
	if baseURL == "" {
		return fmt.Errorf("llm base_url is required for provider %q", provider)
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid llm base_url: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("invalid llm base_url %q: absolute URL with host is required", baseURL)
	}
	if u.User != nil {
		return fmt.Errorf("invalid llm base_url %q: userinfo is not allowed", baseURL)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("invalid llm base_url %q: query and fragment are not allowed", baseURL)
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("invalid llm base_url %q: host is required", baseURL)
	}

	switch scheme {
	case "https":
	default:
		return fmt.Errorf("invalid llm base_url %q: https is required", baseURL)
	}

	allowed := normalizeAllowedHosts(allowedHosts)
	if _, ok := allowed[host]; !ok {
		return fmt.Errorf("invalid llm base_url %q: host %q is not in llm.allowed_hosts", baseURL, host)
	}
	return nil
}

func normalizeAllowedHosts(allowedHosts []string) map[string]struct{} {
	if len(allowedHosts) == 0 {
		return defaultAllowedHosts
	}

	out := make(map[string]struct{}, len(allowedHosts))
	for _, h := range allowedHosts {
		v := strings.ToLower(strings.TrimSpace(h))
		v = strings.TrimPrefix(v, "http://")
		v = strings.TrimPrefix(v, "https://")
		v = strings.Trim(v, "/")
		if v == "" {
			continue
		}
		if i := strings.Index(v, ":"); i >= 0 {
			v = v[:i]
		}
		out[v] = struct{}{}
	}
	if len(out) == 0 {
		return defaultAllowedHosts
	}
	return out
}
