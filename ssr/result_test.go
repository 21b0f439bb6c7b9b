package ssr

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greeting struct {
	Text string `json:"text"`
}

func sampleResult(t *testing.T) *Result {
	t.Helper()
	start := time.Now()
	c := newCollector(start)
	require.True(t, c.capture("counter", 2, true, start.Add(5*time.Millisecond)))
	require.True(t, c.capture("greeting", greeting{Text: "<b>hi</b> & bye"}, false, start.Add(time.Second)))
	c.retry("counter", "load")
	return c.finalize()
}

func TestCollector_CapturesOnceAndFreezes(t *testing.T) {
	start := time.Now()
	c := newCollector(start)

	assert.True(t, c.capture("m", 1, true, start))
	assert.False(t, c.capture("m", 2, true, start))
	c.retry("m", "a")
	c.retry("m", "a")

	res := c.finalize()

	assert.False(t, c.capture("late", 3, true, start))
	c.retry("m", "late")

	state, ok := res.State("m")
	assert.True(t, ok)
	assert.Equal(t, 1, state)
	_, ok = res.State("late")
	assert.False(t, ok)
	assert.Equal(t, []string{"a", "a"}, res.Retries("m"))
}

func TestResult_AccessorsReturnCopies(t *testing.T) {
	res := sampleResult(t)

	states := res.States()
	states["counter"] = 99
	state, _ := res.State("counter")
	assert.Equal(t, 2, state)

	retries := res.RetryMap()
	retries["counter"][0] = "mutated"
	assert.Equal(t, []string{"load"}, res.Retries("counter"))

	assert.Equal(t, []string{"greeting"}, res.Incomplete())
	report, ok := res.Report("counter")
	require.True(t, ok)
	assert.True(t, report.Complete)
	assert.Equal(t, 5*time.Millisecond, report.Span.Duration())
}

func TestResult_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(sampleResult(t))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"state": {"counter": 2, "greeting": {"text": "<b>hi</b> & bye"}},
		"retry": {"counter": ["load"]}
	}`, string(data))

	data, err = json.Marshal(emptyResult())
	require.NoError(t, err)
	assert.JSONEq(t, `{"state": {}, "retry": {}}`, string(data))
}

func TestResult_WriteScript(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleResult(t).WriteScript(&buf))

	assert.NotContains(t, buf.String(), "</b>")

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "hydration_script", buf.Bytes())
}
