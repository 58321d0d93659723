package monitoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseMetricsLabels(t *testing.T) {
	t.Setenv("CHAT_STORE_TEST_POD", "pod-1")

	labels, err := ParseMetricsLabels("service=chat-store,pod=${CHAT_STORE_TEST_POD}")
	require.NoError(t, err)
	require.Equal(t, "chat-store", labels["service"])
	require.Equal(t, "pod-1", labels["pod"])

	labels, err = ParseMetricsLabels("")
	require.NoError(t, err)
	require.Nil(t, labels)

	_, err = ParseMetricsLabels("novalue")
	require.Error(t, err)

	_, err = ParseMetricsLabels("1bad=x")
	require.Error(t, err)
}

func TestRecordersAreSafeBeforeInit(t *testing.T) {
	require.NotPanics(t, func() {
		ObserveStore("noop", time.Now())
		RecordRetentionDeleted("messages", 3)
		RecordEncryptionEvent(EventKEKMissing)
		SetDBPoolStats(1, 2)
	})
}

func TestConfigureLogging(t *testing.T) {
	require.NoError(t, ConfigureLogging("debug"))
	require.NoError(t, ConfigureLogging(""))
	require.Error(t, ConfigureLogging("loud"))
	require.NoError(t, ConfigureLogging("info"))
}
