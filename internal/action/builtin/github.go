package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/harunnryd/kiki/internal/action"
	kerrors "github.com/harunnryd/kiki/internal/errors"
)

const defaultGitHubBaseURL = "https://api.github.com"

func init() {
	action.RegisterBuiltin("getRepository", func(options action.BuiltinOptions) (action.Action, error) {
		baseURL := strings.TrimSpace(options.GitHubBaseURL)
		if baseURL == "" {
			baseURL = defaultGitHubBaseURL
		}
		return &RepositoryAction{
			Client:  options.Client(options.GitHubTimeout),
			BaseURL: baseURL,
			Token:   options.GitHubToken,
		}, nil
	})
}

// RepositoryAction summarizes a public GitHub repository.
type RepositoryAction struct {
	Client  *http.Client
	BaseURL string
	Token   string
}

type githubRepo struct {
	FullName        string   `json:"full_name"`
	Description     string   `json:"description"`
	HTMLURL         string   `json:"html_url"`
	Language        string   `json:"language"`
	StargazersCount int      `json:"stargazers_count"`
	ForksCount      int      `json:"forks_count"`
	OpenIssuesCount int      `json:"open_issues_count"`
	Topics          []string `json:"topics"`
	DefaultBranch   string   `json:"default_branch"`
	PushedAt        string   `json:"pushed_at"`
	Archived        bool     `json:"archived"`
	License         *struct {
		SPDXID string `json:"spdx_id"`
	} `json:"license"`
}

func (a *RepositoryAction) Name() string { return "getRepository" }

func (a *RepositoryAction) Aliases() []string {
	return []string{"github", "repository", "analyzeRepository", "getGithubRepo"}
}

func (a *RepositoryAction) Description() string {
	return "Look up a GitHub repository and summarize stars, forks, language and activity."
}

func (a *RepositoryAction) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"owner": map[string]interface{}{
				"type":        "string",
				"description": "Repository owner, for example golang",
			},
			"repo": map[string]interface{}{
				"type":        "string",
				"description": "Repository name, or owner/name, or a github.com URL",
			},
		},
		"required": []string{"repo"},
	}
}

func (a *RepositoryAction) Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var args struct {
		Owner string `json:"owner"`
		Repo  string `json:"repo"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, kerrors.InvalidInput(err.Error())
	}

	owner, name, err := splitRepository(args.Owner, args.Repo)
	if err != nil {
		return nil, err
	}

	repo, err := a.fetch(ctx, owner, name)
	if err != nil {
		return nil, err
	}

	result := map[string]interface{}{
		"name":           repo.FullName,
		"description":    repo.Description,
		"url":            repo.HTMLURL,
		"language":       repo.Language,
		"stars":          repo.StargazersCount,
		"forks":          repo.ForksCount,
		"open_issues":    repo.OpenIssuesCount,
		"topics":         repo.Topics,
		"default_branch": repo.DefaultBranch,
		"last_push":      repo.PushedAt,
		"archived":       repo.Archived,
	}
	if repo.License != nil && repo.License.SPDXID != "" {
		result["license"] = repo.License.SPDXID
	}
	return json.Marshal(result)
}

func (a *RepositoryAction) fetch(ctx context.Context, owner, name string) (*githubRepo, error) {
	base, err := url.Parse(strings.TrimSpace(a.BaseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid github endpoint %q", a.BaseURL)
	}
	base.Path = strings.TrimSuffix(base.Path, "/") + "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", userAgent)
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}

	client := a.Client
	if client == nil {
		client = &http.Client{Timeout: action.DefaultBuiltinHTTPTimeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, kerrors.NotFound(fmt.Sprintf("repository %s/%s", owner, name))
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return nil, kerrors.Transient(fmt.Sprintf("github rate limit: %s", resp.Status))
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return nil, fmt.Errorf("github request failed: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}

	var repo githubRepo
	if err := json.Unmarshal(body, &repo); err != nil {
		return nil, fmt.Errorf("decode github response: %w", err)
	}
	return &repo, nil
}

// splitRepository accepts owner + repo, "owner/repo", or a github.com URL.
func splitRepository(owner, repo string) (string, string, error) {
	owner = strings.TrimSpace(owner)
	repo = strings.TrimSpace(repo)

	if strings.Contains(repo, "github.com") {
		if u, err := url.Parse(repo); err == nil && u.Host != "" {
			repo = strings.Trim(u.Path, "/")
		} else {
			repo = repo[strings.Index(repo, "github.com")+len("github.com"):]
			repo = strings.Trim(repo, "/:")
		}
	}
	repo = strings.TrimSuffix(repo, ".git")

	if parts := strings.Split(repo, "/"); len(parts) >= 2 {
		owner, repo = parts[0], parts[1]
	}

	if owner == "" || repo == "" {
		return "", "", kerrors.InvalidInput("repository must be given as owner and repo, or owner/repo")
	}
	return owner, repo, nil
}
