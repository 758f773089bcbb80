package persona

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "wooden_dutch/errors"
)

func TestDefaultRoster(t *testing.T) {
	r := Default()

	assert.Equal(t, []string{
		"harrison-blake",
		"priya-chandrasekaran",
		"jean-baptiste-mercier",
		"dakota-chen",
	}, r.IDs())

	for _, p := range r.All() {
		assert.NotEmpty(t, p.Name, p.ID)
		assert.NotEmpty(t, p.Title, p.ID)
		assert.NotEmpty(t, p.VoiceDescription, p.ID)
		assert.Len(t, p.StyleRules, 6, p.ID)
		assert.Len(t, p.TopicAffinities, 8, p.ID)
		assert.Equal(t, p.ID, p.Slug)
	}
}

func TestGet_UnknownIsContractViolation(t *testing.T) {
	r := Default()

	p, err := r.Get("dakota-chen")
	require.NoError(t, err)
	assert.Equal(t, "Dakota Chen", p.Name)

	_, err = r.Get("ernest-hemingway")
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrContractViolation))
	assert.Contains(t, err.Error(), "ernest-hemingway")
}

func TestRenderRecent(t *testing.T) {
	r := Default()

	assert.Equal(t, "(none yet)", r.RenderRecent(nil))
	assert.Equal(t,
		"- Harrison Blake (harrison-blake)\n- retired-writer",
		r.RenderRecent([]string{"harrison-blake", "retired-writer"}))
}

func TestParse_RejectsDuplicates(t *testing.T) {
	_, err := Parse([]byte(`
- id: a
  name: A
- id: a
  name: Again
`))
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrConfig))
}

func TestParse_DefaultsSlug(t *testing.T) {
	r, err := Parse([]byte(`- {id: solo, name: Solo Writer}`))
	require.NoError(t, err)
	p, ok := r.Lookup("solo")
	require.True(t, ok)
	assert.Equal(t, "solo", p.Slug)
}
