package filter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/p-blackswan/chatkeeper/internal/errors"
)

func newTestClassifier(words ...string) *Classifier {
	return NewClassifier(DefaultConfig(), NewBlacklist(words...))
}

func TestClassify_StreamMessages(t *testing.T) {
	c := newTestClassifier()

	assert.Equal(t, VerdictNone, c.Classify("Hey I love the stream!!"))
	assert.Equal(t, VerdictCaps, c.Classify("HEY I LOVE THE STREAM"))
	assert.Equal(t, VerdictNone, c.Classify("Hey I Love The Stream"))
	assert.Equal(t, VerdictLink, c.Classify("Check out this link: www.google.com"))
}

func TestClassify_CapsBelowMinimumLength(t *testing.T) {
	c := newTestClassifier()

	for _, msg := range []string{"A", "AB", "ABCD", "ABCDE", "HI!!!"} {
		assert.Equal(t, VerdictNone, c.Classify(msg), msg)
	}
	assert.Equal(t, VerdictCaps, c.Classify("ABCDEF"))
}

func TestClassify_CapsRatioIsStrict(t *testing.T) {
	c := newTestClassifier()

	// 6 of 8 uppercase is exactly 0.75.
	assert.Equal(t, VerdictNone, c.Classify("ABCDEFgh"))
	// 7 of 8 is above.
	assert.Equal(t, VerdictCaps, c.Classify("ABCDEFGh"))
}

func TestClassify_CapsCountsNonLetters(t *testing.T) {
	c := newTestClassifier()

	// Spaces and digits dilute the ratio: 3 upper of 8 characters.
	assert.Equal(t, VerdictNone, c.Classify("WOW 1234"))
}

func TestClassify_CapsCustomThresholds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CapsMinLength = 2
	cfg.CapsRatio = 0.5
	c := NewClassifier(cfg, nil)

	assert.Equal(t, VerdictCaps, c.Classify("ABc"))
	assert.Equal(t, VerdictNone, c.Classify("AB"))
}

func TestClassify_Links(t *testing.T) {
	c := newTestClassifier()

	tests := []struct {
		msg  string
		want Verdict
	}{
		{"go to https://example.com/path now", VerdictLink},
		{"http://foo.io", VerdictLink},
		{"see twitch.tv/somebody", VerdictLink},
		{"no links here", VerdictNone},
		{"sentence ends with a period.", VerdictNone},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.msg))
		})
	}
}

func TestClassify_BlacklistAddRemove(t *testing.T) {
	c := newTestClassifier()
	msg := "The word foobar should be blacklisted."

	assert.Equal(t, VerdictNone, c.Classify(msg))

	require.NoError(t, c.Blacklist().Add("foobar"))
	assert.Equal(t, VerdictBlacklisted, c.Classify(msg))

	assert.True(t, c.Blacklist().Remove("foobar"))
	assert.Equal(t, VerdictNone, c.Classify(msg))
}

func TestClassify_BlacklistExactTokens(t *testing.T) {
	c := newTestClassifier("foobar")

	assert.Equal(t, VerdictBlacklisted, c.Classify("  foobar  "))
	assert.Equal(t, VerdictNone, c.Classify("foobar, please"))
	assert.Equal(t, VerdictNone, c.Classify("FooBar"))
	assert.Equal(t, VerdictNone, c.Classify("foobars"))
}

func TestClassify_PriorityOrder(t *testing.T) {
	c := newTestClassifier("foobar")

	capsAndLink := strings.Repeat("A", 20) + " a.co"
	assert.Equal(t, VerdictCaps, c.Classify(capsAndLink))

	linkAndWord := "foobar www.google.com"
	assert.Equal(t, VerdictLink, c.Classify(linkAndWord))
}

func TestClassify_DisabledRulesFallThrough(t *testing.T) {
	c := newTestClassifier("FOOBAR", "foobar")

	assert.Equal(t, VerdictCaps, c.Classify("FOOBAR FOOBAR"))
	require.NoError(t, c.SetRuleEnabled(RuleCaps, false))
	assert.Equal(t, VerdictBlacklisted, c.Classify("FOOBAR FOOBAR"))

	assert.Equal(t, VerdictLink, c.Classify("foobar www.google.com"))
	require.NoError(t, c.SetRuleEnabled(RuleLinks, false))
	assert.Equal(t, VerdictBlacklisted, c.Classify("foobar www.google.com"))

	require.NoError(t, c.SetRuleEnabled(RuleBlacklist, false))
	assert.Equal(t, VerdictNone, c.Classify("foobar www.google.com"))
}

func TestSetRuleEnabled_Unknown(t *testing.T) {
	c := newTestClassifier()
	err := c.SetRuleEnabled("emotes", true)
	assert.ErrorIs(t, err, cerrors.ErrInvalidConfiguration)
}

func TestSetConfig_RejectsInvalidAndKeepsPrevious(t *testing.T) {
	c := newTestClassifier()

	bad := DefaultConfig()
	bad.CapsRatio = 1.5
	assert.ErrorIs(t, c.SetConfig(bad), cerrors.ErrInvalidConfiguration)

	bad = DefaultConfig()
	bad.CapsMinLength = -1
	assert.ErrorIs(t, c.SetConfig(bad), cerrors.ErrInvalidConfiguration)

	assert.Equal(t, DefaultConfig(), c.Config())
}

func TestNewClassifier_InvalidConfigFallsBack(t *testing.T) {
	c := NewClassifier(Config{CapsRatio: 0}, nil)
	assert.Equal(t, DefaultConfig(), c.Config())
	assert.NotNil(t, c.Blacklist())
}

func TestVerdict_String(t *testing.T) {
	assert.Equal(t, "none", VerdictNone.String())
	assert.Equal(t, "caps", VerdictCaps.String())
	assert.Equal(t, "link", VerdictLink.String())
	assert.Equal(t, "blacklisted", VerdictBlacklisted.String())
	assert.Equal(t, "unknown", Verdict(42).String())
}
