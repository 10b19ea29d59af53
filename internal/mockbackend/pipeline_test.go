package mockbackend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/sitegen/internal/logging"
	"github.com/raysh454/sitegen/internal/model"
)

func TestSlug(t *testing.T) {
	t.Parallel()
	cases := []struct{ in, want string }{
		{"Acme Exports", "acme-exports"},
		{"Café Ölmühle GmbH", "cafe-olmuhle-gmbh"},
		{"  --Hello, World!-- ", "hello-world"},
		{"日本", "site"},
		{"", "site"},
		{"A Very Long Company Name That Keeps Going And Going", "a-very-long-company-name-that-keeps-goin"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, slug(c.in), "slug(%q)", c.in)
	}
}

func TestPipeline_SubscribeStreamsThenCloses(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.StepInterval = 20 * time.Millisecond
	p := NewPipeline(cfg, logging.Nop())
	t.Cleanup(p.Close)

	job, err := p.StartJob(model.GenerateRequest{BusinessInfo: model.BusinessInfo{CompanyName: "Stream Co"}}, "alice")
	require.NoError(t, err)

	_, _, ok := p.Subscribe(job.ID, "bob")
	assert.False(t, ok, "jobs are private to their owner")

	events, unsubscribe, ok := p.Subscribe(job.ID, "alice")
	require.True(t, ok)
	defer unsubscribe()

	var last int
	var lastType string
	for ev := range events {
		lastType = string(ev.Type)
		if ev.ProgressPercentage != nil {
			assert.GreaterOrEqual(t, *ev.ProgressPercentage, last)
			last = *ev.ProgressPercentage
		}
		if ev.Type == "job_completed" {
			require.NotNil(t, ev.Result)
			assert.Equal(t, "https://stream-co.up.railway.app", ev.Result.RailwayDeploymentURL)
		}
	}
	assert.Equal(t, "job_completed", lastType)

	// Late subscribers get the terminal event only.
	events, _, ok = p.Subscribe(job.ID, "alice")
	require.True(t, ok)
	var replay []string
	for ev := range events {
		replay = append(replay, string(ev.Type))
	}
	assert.Equal(t, []string{"job_completed"}, replay)
}

func TestPipeline_StartAfterClose(t *testing.T) {
	t.Parallel()
	p := NewPipeline(DefaultConfig(), nil)
	p.Close()
	_, err := p.StartJob(model.GenerateRequest{}, "alice")
	assert.Error(t, err)
}

func TestServer_StorageDirIsExclusive(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.StorageDir = t.TempDir()
	cfg.Logger = logging.Nop()

	first, err := NewServer(cfg)
	require.NoError(t, err)

	_, err = NewServer(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in use")

	first.Close()
	second, err := NewServer(cfg)
	require.NoError(t, err)
	second.Close()
}
