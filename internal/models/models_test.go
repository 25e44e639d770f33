package models

import "testing"

func TestRenderRequestValidate(t *testing.T) {
	valid := RenderRequest{
		ProjectID: "p1",
		RenderID:  "r1",
		AudioURL:  "https://example.com/audio.mp3",
		Scenes:    []Scene{{ImageURL: "https://example.com/a.png", Duration: 4}},
	}

	tests := []struct {
		name   string
		mutate func(*RenderRequest)
		want   string
	}{
		{"valid", func(r *RenderRequest) {}, ""},
		{"missing project", func(r *RenderRequest) { r.ProjectID = "" }, "project_id is required"},
		{"missing render", func(r *RenderRequest) { r.RenderID = "" }, "render_id is required"},
		{"missing audio", func(r *RenderRequest) { r.AudioURL = "" }, "audio_url is required"},
		{"no scenes", func(r *RenderRequest) { r.Scenes = nil }, "scenes must not be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			if got := req.Validate(); got != tt.want {
				t.Errorf("Validate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestJobStatusTerminal(t *testing.T) {
	tests := []struct {
		status JobStatus
		want   bool
	}{
		{JobStatusQueued, false},
		{JobStatusRendering, false},
		{JobStatusCompleted, true},
		{JobStatusFailed, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}
