package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"websentry/pkg/model"
)

func TestExtractRequestCounters(t *testing.T) {
	ev := &model.RequestEvent{
		URL:    "https://example.com/login?next=1",
		Method: "POST",
		Body:   []byte(`it's a "test" -- {ok}`),
	}
	fr := ExtractRequest(ev)

	assert.Equal(t, 1, fr.SingleQ)
	assert.Equal(t, 2, fr.DoubleQ)
	assert.Equal(t, 1, fr.Dashes)
	assert.Equal(t, 2, fr.Braces)
	assert.Equal(t, 4, fr.Spaces)
	assert.Equal(t, "POST", fr.Method)
	assert.Equal(t, "/login", fr.Path)
	assert.Equal(t, len("/login"), fr.PathLength)
	assert.Equal(t, len(ev.Body), fr.BodyLength)
}

func TestExtractRequestDeterministic(t *testing.T) {
	ev := &model.RequestEvent{
		URL:    "https://example.com/a%20b/c",
		Method: "GET",
		Body:   []byte("union select * from users; drop table x -- %%"),
	}
	first := ExtractRequest(ev)
	second := ExtractRequest(ev)
	require.Equal(t, first, second)
}

func TestBadwordsPresenceNotFrequency(t *testing.T) {
	fr := ExtractRequest(&model.RequestEvent{Body: []byte("sleep sleep sleep")})
	assert.Equal(t, 1, fr.BadwordsCount)

	fr = ExtractRequest(&model.RequestEvent{Body: []byte("SELECT x FROM t WHERE a=1 OR 1=1; drop")})
	// select, or 1=1, drop
	assert.Equal(t, 3, fr.BadwordsCount)

	assert.LessOrEqual(t, ExtractRequest(&model.RequestEvent{
		Body: []byte("sleep uid select waitfor delay system union order by group by admin drop script insert update delete xp_ or 1=1"),
	}).BadwordsCount, len(badwords))
}

func TestExtractRequestDegradesOnMalformedInput(t *testing.T) {
	fr := ExtractRequest(nil)
	assert.Equal(t, model.FeatureRecord{}, fr)

	fr = ExtractRequest(&model.RequestEvent{URL: "://not a url", Method: ""})
	assert.Equal(t, "", fr.Path)
	assert.Equal(t, 0, fr.BodyLength)

	// 非 UTF-8 请求体退化为空串
	fr = ExtractRequest(&model.RequestEvent{Body: []byte{0xff, 0xfe, 0xfd}})
	assert.Equal(t, "", fr.Body)
	assert.Equal(t, 0, fr.BodyLength)
}

func TestExtractURL(t *testing.T) {
	uf := ExtractURL("http://a-b.example.com/x_y/z?q=1&r=2", 2)

	assert.Equal(t, 2, uf.NRedirection)
	assert.Equal(t, 2, uf.NDots)
	assert.Equal(t, 1, uf.NHyphens)
	assert.Equal(t, 1, uf.NUnderline)
	assert.Equal(t, 4, uf.NSlash)
	assert.Equal(t, 1, uf.NQuestionmark)
	assert.Equal(t, 2, uf.NEqual)
	assert.Equal(t, 1, uf.NAnd)
	assert.Equal(t, len("http://a-b.example.com/x_y/z?q=1&r=2"), uf.URLLength)
}
