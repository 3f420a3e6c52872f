package stealth

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestApply(t *testing.T) {
	t.Run("desktop persona", func(t *testing.T) {
		core, observedLogs := observer.New(zap.DebugLevel)
		tasks := Apply(DefaultPersona, zap.New(core))

		// network, UA, script, timezone, locale, headers, metrics.
		assert.Len(t, tasks, 7)
		logs := observedLogs.All()
		require.Len(t, logs, 1)
		assert.Equal(t, "Applying browser persona.", logs[0].Message)
		assert.Equal(t, false, logs[0].ContextMap()["mobile"])
	})

	t.Run("mobile persona adds touch emulation", func(t *testing.T) {
		tasks := Apply(MobilePersona, zap.NewNop())
		assert.Len(t, tasks, 8)
	})

	t.Run("bare persona", func(t *testing.T) {
		tasks := Apply(Persona{UserAgent: "ua"}, zap.NewNop())
		assert.Len(t, tasks, 3)
	})
}

func TestAcceptLanguage(t *testing.T) {
	assert.Equal(t, "zh-CN,zh;q=0.9,en;q=0.8", DefaultPersona.AcceptLanguage())
	assert.Equal(t, "", Persona{}.AcceptLanguage())

	p := Persona{Languages: []string{"a", "b", "c", "d", "e", "f"}}
	assert.Equal(t, "a,b;q=0.9,c;q=0.8,d;q=0.7,e;q=0.7,f;q=0.7", p.AcceptLanguage())
}

func TestBuildEvasionScript(t *testing.T) {
	personaJSON, err := json.Marshal(MobilePersona)
	require.NoError(t, err)

	script := BuildEvasionScript(personaJSON)
	assert.Contains(t, script, "const SCRIBE_PERSONA = {")
	assert.Contains(t, script, `"mobile":true`)
	assert.Contains(t, script, "webdriver")
}
