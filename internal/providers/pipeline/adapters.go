package pipeline

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Stage adapter endpoint paths on the provider API.
const (
	scriptPath   = "v1/scripts"
	renderPath   = "v1/renders"
	musicPath    = "v1/music"
	assemblyPath = "v1/assemblies"
)

var titleCaser = cases.Title(language.English)

// ScriptAdapter synthesizes the script and scene plan for a story.
type ScriptAdapter struct {
	client *Client
}

func NewScriptAdapter(client *Client) *ScriptAdapter {
	return &ScriptAdapter{client: client}
}

func (a *ScriptAdapter) Invoke(ctx context.Context, input StageInput) (*Invocation, error) {
	return a.client.invoke(ctx, scriptPath, map[string]any{
		"reference": input.JobID,
		"subject":   input.SubjectID,
		"prompt":    input.Prompt,
		"style":     normalizeLabel(input.Style),
		"theme":     normalizeLabel(input.Theme),
		"locale":    input.Locale,
	})
}

func (a *ScriptAdapter) Poll(ctx context.Context, providerJobID string) (*PollResult, error) {
	return a.client.poll(ctx, scriptPath, providerJobID)
}

// VideoAdapter renders one scene image into a video clip.
type VideoAdapter struct {
	client *Client
}

func NewVideoAdapter(client *Client) *VideoAdapter {
	return &VideoAdapter{client: client}
}

func (a *VideoAdapter) Invoke(ctx context.Context, input StageInput) (*Invocation, error) {
	return a.client.invoke(ctx, renderPath, map[string]any{
		"reference": input.JobID,
		"prompt":    input.Prompt,
		"image":     input.ImageRef,
		"style":     normalizeLabel(input.Style),
	})
}

func (a *VideoAdapter) Poll(ctx context.Context, providerJobID string) (*PollResult, error) {
	return a.client.poll(ctx, renderPath, providerJobID)
}

// MusicAdapter synthesizes the background track.
type MusicAdapter struct {
	client *Client
}

func NewMusicAdapter(client *Client) *MusicAdapter {
	return &MusicAdapter{client: client}
}

func (a *MusicAdapter) Invoke(ctx context.Context, input StageInput) (*Invocation, error) {
	return a.client.invoke(ctx, musicPath, map[string]any{
		"reference": input.JobID,
		"prompt":    input.Prompt,
		"theme":     normalizeLabel(input.Theme),
	})
}

func (a *MusicAdapter) Poll(ctx context.Context, providerJobID string) (*PollResult, error) {
	return a.client.poll(ctx, musicPath, providerJobID)
}

// AssemblyAdapter concatenates rendered clips and the music track into the
// final video.
type AssemblyAdapter struct {
	client *Client
}

func NewAssemblyAdapter(client *Client) *AssemblyAdapter {
	return &AssemblyAdapter{client: client}
}

func (a *AssemblyAdapter) Invoke(ctx context.Context, input StageInput) (*Invocation, error) {
	return a.client.invoke(ctx, assemblyPath, map[string]any{
		"reference": input.JobID,
		"scenes":    input.SceneURLs,
		"music":     input.MusicURL,
	})
}

func (a *AssemblyAdapter) Poll(ctx context.Context, providerJobID string) (*PollResult, error) {
	return a.client.poll(ctx, assemblyPath, providerJobID)
}

// normalizeLabel title-cases free-form style/theme labels so the provider
// receives canonical values ("film noir" -> "Film Noir").
func normalizeLabel(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	return titleCaser.String(strings.ToLower(v))
}

var (
	_ Adapter = (*ScriptAdapter)(nil)
	_ Adapter = (*VideoAdapter)(nil)
	_ Adapter = (*MusicAdapter)(nil)
	_ Adapter = (*AssemblyAdapter)(nil)
)
