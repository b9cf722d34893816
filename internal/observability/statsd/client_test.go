package statsd

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrimPrefix(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"  aiqualifier.api  ": "aiqualifier.api",
		"..aiqualifier..":     "aiqualifier",
		".":                   "",
		"":                    "",
	}

	for input, want := range tests {
		assert.Equal(t, want, trimPrefix(input), "trimPrefix(%q)", input)
	}
}

func TestCleanName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		" jobs/qualify_prospects ": "jobs_qualify_prospects",
		"runs..completed":          "runs.completed",
		"reaper  sweep":            "reaper__sweep",
		"runs/run-1/progress":      "runs_run-1_progress",
	}

	for input, want := range tests {
		assert.Equal(t, want, cleanName(input), "cleanName(%q)", input)
	}
}

func TestEncodeTags(t *testing.T) {
	t.Parallel()

	global := map[string]string{
		"env": "prod",
		// Padded key and value exercise the trimming path.
		" component ": " qualifier ",
	}
	local := map[string]string{
		"result": " success ",
		"":       "ignored",
		"env":    "staging",
	}

	got := encodeTags(global, local)
	assert.Equal(t, "|#component:qualifier,env:staging,result:success", got)
}

func TestEncodeTagsEmpty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, encodeTags(nil, nil))
	assert.Empty(t, encodeTags(map[string]string{" ": "dropped"}, nil))
}

func TestCopyTagsReturnsCopy(t *testing.T) {
	t.Parallel()

	original := map[string]string{
		"env": "prod",
		"":    "ignored",
	}

	cloned := copyTags(original)
	require.NotNil(t, cloned)

	cloned["env"] = "staging"
	assert.Equal(t, "prod", original["env"])
	assert.NotContains(t, cloned, "")
}

func TestClientEmitsTaggedLine(t *testing.T) {
	t.Parallel()

	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	client := &Client{
		enabled:    true,
		prefix:     "aiqualifier",
		globalTags: map[string]string{"env": "test"},
		conn:       clientConn,
	}

	lines := make(chan string, 1)
	go func() {
		buf := make([]byte, 512)
		n, err := peerConn.Read(buf)
		if err != nil {
			lines <- "read error: " + err.Error()
			return
		}
		lines <- string(buf[:n])
	}()

	client.Count("jobs.completed", 1, map[string]string{"job_type": "qualify_prospects"})

	select {
	case line := <-lines:
		assert.Equal(t, "aiqualifier.jobs.completed:1|c|#env:test,job_type:qualify_prospects", line)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for metric line")
	}
}

func TestClientEnabledAndClose(t *testing.T) {
	t.Parallel()

	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	client := &Client{
		enabled: true,
		conn:    clientConn,
	}
	assert.True(t, client.Enabled())

	require.NoError(t, client.Close())
	assert.False(t, client.Enabled())

	// Close is idempotent.
	require.NoError(t, client.Close())

	var nilClient *Client
	assert.False(t, nilClient.Enabled())
	require.NoError(t, nilClient.Close())
}

func TestNewClientDisabledWithoutAddress(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{
		Enabled: true,
		Address: "   ",
		Prefix:  "aiqualifier",
	})
	require.NoError(t, err)
	assert.False(t, client.Enabled())

	// Disabled clients swallow emits without a connection.
	client.Gauge("runs.active", 3, nil)
	client.Timing("runs.duration", time.Second, nil)
}

func TestNewClientDialError(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{
		Enabled: true,
		Address: "bad address",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statsd dial")
}
