package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.True(t, cfg.PublicSlash)
	assert.Equal(t, "commands", cfg.CommandsDir)
	assert.Equal(t, 4, cfg.ShardsPerCluster)
	assert.Equal(t, 6, cfg.BurstMax)
	assert.Equal(t, 10*time.Second, cfg.BurstWindow)
	assert.Equal(t, time.Minute, cfg.PresenceInterval)
	assert.Equal(t, 3*time.Second, cfg.ClusterTimeout)
}

func TestParseRequiresToken(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	_, err := Parse()
	assert.ErrorContains(t, err, "DISCORD_TOKEN")
}

func TestParseListsAndPeers(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("DEVELOPERS", "1,2")
	t.Setenv("CLUSTER_PEERS", "1=http://10.0.0.2:7400/,2=http://10.0.0.3:7400")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.True(t, cfg.IsDeveloper("2"))
	assert.False(t, cfg.IsDeveloper("3"))

	peers, err := cfg.Peers()
	require.NoError(t, err)
	assert.Equal(t, []Peer{{"1", "http://10.0.0.2:7400"}, {"2", "http://10.0.0.3:7400"}}, peers)
}

func TestParseRejectsBadPeer(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("CLUSTER_PEERS", "nourl")
	_, err := Parse()
	assert.ErrorContains(t, err, "want id=url")
}

func TestShards(t *testing.T) {
	cfg := &Config{ShardsPerCluster: 4, ClusterID: 1}
	assert.Equal(t, []int{4, 5, 6, 7}, cfg.Shards(10))
	assert.Equal(t, []int{4, 5}, cfg.Shards(6))

	cfg.ClusterID = 3
	assert.Empty(t, cfg.Shards(10))
}

func TestCooldownPolicy(t *testing.T) {
	cfg := &Config{BurstMax: 6, BurstWindow: 10 * time.Second}
	p := cfg.CooldownPolicy()
	assert.Equal(t, []string{"developers"}, p.High.Categories)
	assert.Equal(t, time.Minute, p.High.Default)
	assert.Equal(t, 400*time.Millisecond, p.General.Default)
	assert.Equal(t, 6, p.BurstMax)
}
