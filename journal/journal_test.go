package journal

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournal_BatchFlush(t *testing.T) {
	msgCount := 500
	recv := 0
	var mu sync.Mutex
	quit := make(chan bool, 1)

	j, err := NewJournal(&Config{
		File:          filepath.Join(t.TempDir(), "message.log"),
		FlushInterval: 10 * time.Millisecond,
		MaxBatch:      50,
		SubFunc: func(records []*bytes.Buffer) error {
			mu.Lock()
			recv += len(records)
			done := recv == msgCount
			mu.Unlock()
			if done {
				quit <- true
			}
			return nil
		},
	})
	require.NoError(t, err)
	defer j.Close()

	go func() {
		for i := 0; i < msgCount; i++ {
			j.Write([]byte(fmt.Sprintf(`{"id":"m%d"}`, i)))
		}
	}()

	select {
	case <-quit:
	case <-time.After(5 * time.Second):
		t.Fatalf("flush timeout, recv=%d", recv)
	}
}

func TestJournal_RetryFailedBatch(t *testing.T) {
	fails := 2
	var mu sync.Mutex
	var got []string
	j, err := NewJournal(&Config{
		File:          filepath.Join(t.TempDir(), "message.log"),
		FlushInterval: 5 * time.Millisecond,
		SubFunc: func(records []*bytes.Buffer) error {
			mu.Lock()
			defer mu.Unlock()
			if fails > 0 {
				fails--
				return fmt.Errorf("store unavailable")
			}
			for _, r := range records {
				got = append(got, r.String())
			}
			return nil
		},
	})
	require.NoError(t, err)

	require.NoError(t, j.Write([]byte("r1")))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, j.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"r1"}, got)
}

func TestJournal_Replay(t *testing.T) {
	file := filepath.Join(t.TempDir(), "message.log")
	j, err := NewJournal(&Config{File: file})
	require.NoError(t, err)
	require.NoError(t, j.Write([]byte("a")))
	require.NoError(t, j.Write([]byte("b")))
	require.NoError(t, j.Close())

	assert.Error(t, j.Write([]byte("c")), "write after close must fail")

	records, err := Replay(file)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, records)

	records, err = Replay(filepath.Join(t.TempDir(), "missing.log"))
	require.NoError(t, err)
	assert.Nil(t, records)
}
