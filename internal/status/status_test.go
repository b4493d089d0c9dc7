package status

import (
	"testing"

	"github.com/apex/log"
	"github.com/apex/log/handlers/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tableread/internal/errs"
)

func TestMessages(t *testing.T) {
	t.Parallel()

	ms := Messages{
		Infof("job", "job %q", "nightly"),
		Warningf("read.limit", "limit is %d", 0),
	}
	assert.False(t, ms.HasError())
	assert.NoError(t, ms.Err())

	ms = append(ms, Errorf("locations[0].path", "must not be empty"), Errorf("sink.kind", "unknown"))
	assert.True(t, ms.HasError())
	assert.Len(t, ms.Filter(Error), 2)
	assert.Len(t, ms.Filter(Warning), 1)

	err := ms.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	assert.Contains(t, err.Error(), "locations[0].path: must not be empty")

	assert.Equal(t, "warning at read.limit: limit is 0", ms[1].Error())
}

func TestMessages_Log(t *testing.T) {
	t.Parallel()

	h := memory.New()
	l := &log.Logger{Handler: h, Level: log.DebugLevel}

	Messages{
		Infof("a", "note"),
		Warningf("b", "careful"),
		Errorf("c", "broken"),
	}.Log(l)

	require.Len(t, h.Entries, 3)
	assert.Equal(t, log.InfoLevel, h.Entries[0].Level)
	assert.Equal(t, log.WarnLevel, h.Entries[1].Level)
	assert.Equal(t, log.ErrorLevel, h.Entries[2].Level)
	assert.Equal(t, "c", h.Entries[2].Fields.Get("path"))
	assert.Equal(t, "broken", h.Entries[2].Message)
}

func TestSeverity_String(t *testing.T) {
	t.Parallel()

	b, err := Error.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "error", string(b))
	assert.Equal(t, "severity(7)", Severity(7).String())
}
