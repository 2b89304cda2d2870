package label

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLabels_SingleIndexImplicit(t *testing.T) {
	labels := map[string]string{
		"npm.proxy.domains": "e.test",
		"npm.proxy.port":    "5678",
	}
	res := ParseLabels(labels, DefaultBoolDefaults())
	require.Empty(t, res.Warnings)
	require.Contains(t, res.Proxies, 0)

	cfg := res.Proxies[0]
	assert.Equal(t, []string{"e.test"}, cfg.Domains)
	require.NotNil(t, cfg.ForwardPort)
	assert.Equal(t, 5678, *cfg.ForwardPort)
	assert.True(t, cfg.BlockExploits)
	assert.False(t, cfg.SSLForced)
}

func TestParseLabels_DashAndDotSynonyms(t *testing.T) {
	dot := ParseLabels(map[string]string{
		"npm.proxy.domains": "a.test,b.test",
		"npm.proxy.port":    "80",
	}, DefaultBoolDefaults())
	dash := ParseLabels(map[string]string{
		"npm-proxy-domains": "a.test,b.test",
		"npm-proxy-port":    "80",
	}, DefaultBoolDefaults())

	assert.Equal(t, dot.Proxies[0].Domains, dash.Proxies[0].Domains)
	assert.Equal(t, dot.Proxies[0].ForwardPort, dash.Proxies[0].ForwardPort)

	// The dot and dash namespaces must parse to an identical ProxyConfig, down to every field - a plain
	// assert.Equal diff on a struct this wide is hard to read, so compare with cmp for a field-level diff.
	if diff := cmp.Diff(dot.Proxies[0], dash.Proxies[0]); diff != "" {
		t.Errorf("dot/dash synonym mismatch (-dot +dash):\n%s", diff)
	}
}

func TestParseLabels_ExplicitIndexZeroWinsOverImplicit(t *testing.T) {
	labels := map[string]string{
		"npm.proxy.domains":   "implicit.test",
		"npm.proxy.0.domains": "explicit.test",
		"npm.proxy.0.port":    "9000",
	}
	res := ParseLabels(labels, DefaultBoolDefaults())
	require.Contains(t, res.Proxies, 0)
	assert.Equal(t, []string{"explicit.test"}, res.Proxies[0].Domains)
}

func TestParseLabels_MultiIndex(t *testing.T) {
	labels := map[string]string{
		"npm.proxy.0.domains": "a",
		"npm.proxy.0.port":    "80",
		"npm.proxy.1.domains": "b",
		"npm.proxy.1.port":    "90",
	}
	res := ParseLabels(labels, DefaultBoolDefaults())
	require.Len(t, res.Proxies, 2)
	assert.Equal(t, []string{"a"}, res.Proxies[0].Domains)
	assert.Equal(t, []string{"b"}, res.Proxies[1].Domains)
}

func TestParseLabels_MissingDomainsWarnsAndSkipsOnlyThatIndex(t *testing.T) {
	labels := map[string]string{
		"npm.proxy.0.port":   "80", // missing domains
		"npm.proxy.1.domain": "ok.test",
		"npm.proxy.1.port":   "90",
	}
	res := ParseLabels(labels, DefaultBoolDefaults())
	assert.NotContains(t, res.Proxies, 0)
	assert.Contains(t, res.Proxies, 1)
	assert.NotEmpty(t, res.Warnings)
}

func TestParseLabels_BooleanVariants(t *testing.T) {
	for _, v := range []string{"true", "1", "yes", "on", "TRUE", "On"} {
		labels := map[string]string{
			"npm.proxy.domains":  "x.test",
			"npm.proxy.ssl.force": v,
		}
		res := ParseLabels(labels, DefaultBoolDefaults())
		assert.True(t, res.Proxies[0].SSLForced, "value %q should be truthy", v)
	}
}

func TestParseLabels_Stream(t *testing.T) {
	labels := map[string]string{
		"npm.stream.incoming.port": "2022",
		"npm.stream.forward.host":  "backend",
		"npm.stream.forward.port":  "22",
		"npm.stream.forward.udp":   "true",
	}
	res := ParseLabels(labels, DefaultBoolDefaults())
	require.Contains(t, res.Streams, 0)
	s := res.Streams[0]
	assert.Equal(t, 2022, s.IncomingPort)
	assert.True(t, s.TCPForwarding)
	assert.True(t, s.UDPForwarding)
}

func TestParseLabels_StreamRequiresTCPOrUDP(t *testing.T) {
	labels := map[string]string{
		"npm.stream.incoming.port": "2022",
		"npm.stream.forward.tcp":   "false",
		"npm.stream.forward.udp":   "off",
	}
	res := ParseLabels(labels, DefaultBoolDefaults())
	assert.NotContains(t, res.Streams, 0)
	assert.NotEmpty(t, res.Warnings)
}

func TestParseLabels_Deterministic(t *testing.T) {
	labels := map[string]string{
		"npm.proxy.0.domains": "a.test",
		"npm.proxy.0.port":    "80",
		"npm.proxy.1.domains": "b.test",
		"npm.proxy.1.port":    "90",
		"npm.stream.incoming.port": "2022",
	}
	a := ParseLabels(labels, DefaultBoolDefaults())
	b := ParseLabels(labels, DefaultBoolDefaults())
	assert.Equal(t, a.Proxies, b.Proxies)
	assert.Equal(t, a.Streams, b.Streams)
}

func TestParseLabels_IgnoresUnrelatedLabels(t *testing.T) {
	labels := map[string]string{
		"com.docker.compose.project": "myproj",
		"npm.proxy.domains":          "x.test",
		"npm.proxy.port":             "80",
	}
	res := ParseLabels(labels, DefaultBoolDefaults())
	assert.Len(t, res.Proxies, 1)
}

func TestParseLabels_IndexOutOfRange(t *testing.T) {
	labels := map[string]string{
		"npm.proxy.100.domains": "x.test",
		"npm.proxy.100.port":    "80",
	}
	res := ParseLabels(labels, DefaultBoolDefaults())
	assert.Empty(t, res.Proxies)
	assert.NotEmpty(t, res.Warnings)
}
