package excollect_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibur/vibur-dbcp-sub001/excollect"
)

func TestZeroValueIsUsable(t *testing.T) {
	var c excollect.Collector
	assert.True(t, c.IsEmpty())
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Snapshot())
}

func TestAddIgnoresNilError(t *testing.T) {
	c := excollect.New(nil)
	c.Add(nil)
	assert.True(t, c.IsEmpty())
}

func TestAddWithoutClassifierRecordsEverything(t *testing.T) {
	c := excollect.New(nil)
	c.Add(errors.New("first"))
	c.Add(errors.New("second"))

	assert.False(t, c.IsEmpty())
	require.Equal(t, 2, c.Len())
	assert.Equal(t, []string{"first", "second"}, errMessages(c.Snapshot()))
}

func TestClassifierFuncFiltersTransientErrors(t *testing.T) {
	classifier := excollect.ClassifierFunc(func(err error) bool {
		return err.Error() != "transient"
	})
	c := excollect.New(classifier)

	c.Add(errors.New("transient"))
	c.Add(errors.New("fatal"))

	require.Equal(t, 1, c.Len())
	assert.Equal(t, "fatal", c.Snapshot()[0].Error())
}

func TestSnapshotOrderIsOldestFirst(t *testing.T) {
	c := excollect.New(nil)
	for _, msg := range []string{"a", "b", "c"} {
		c.Add(errors.New(msg))
	}
	assert.Equal(t, []string{"a", "b", "c"}, errMessages(c.Snapshot()))
}

func TestAddIsSafeForConcurrentWriters(t *testing.T) {
	c := excollect.New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c.Add(errors.New("err"))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 100, c.Len())
	assert.Len(t, c.Snapshot(), 100)
}

func errMessages(errs []error) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Error()
	}
	return out
}
