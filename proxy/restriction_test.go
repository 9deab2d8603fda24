package proxy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vibur/vibur-dbcp-sub001/proxy"
)

func TestNilRestrictionAllowsEverything(t *testing.T) {
	var r *proxy.Restriction
	assert.NoError(t, r.Check("drop table users"))
}

func TestWhitelistRejectsUnlistedPrefix(t *testing.T) {
	r := &proxy.Restriction{Prefixes: []string{"select"}, Polarity: proxy.Whitelist}

	assert.NoError(t, r.Check("  SELECT * FROM t"))
	assert.Error(t, r.Check("delete from t"))
}

func TestBlacklistRejectsListedPrefix(t *testing.T) {
	r := &proxy.Restriction{Prefixes: []string{"drop table", "drop"}, Polarity: proxy.Blacklist}

	err := r.Check("DROP TABLE users")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "drop table")

	assert.NoError(t, r.Check("select 1"))
}

func TestLongestPrefixWins(t *testing.T) {
	r := &proxy.Restriction{Prefixes: []string{"drop", "drop table"}, Polarity: proxy.Blacklist}

	err := r.Check("drop table users")
	assert.ErrorContains(t, err, "drop table")
}
