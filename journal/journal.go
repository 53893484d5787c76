// Package journal 已接受消息的追加日志。
// 每条记录先落文件再进内存批次，后台按批回调 SubFunc 落库；
// 这里的失败只影响审计流水，不影响消息本身的持久化。
package journal

import (
	"bufio"
	"bytes"
	"errors"
	"os"
	"sync"
	"time"
)

const (
	defaultFlushInterval = time.Second
	defaultMaxBatch      = 200
)

var errClosed = errors.New("journal is closed")

// Config journal config
type Config struct {
	File string
	// SubFunc 批量消费回调，nil 时只写文件
	SubFunc       func(records []*bytes.Buffer) error
	FlushInterval time.Duration
	MaxBatch      int
}

// Journal Journal
type Journal struct {
	config *Config
	file   *os.File

	mu      sync.Mutex
	pending []*bytes.Buffer
	closed  bool

	flush chan struct{}
	quit  chan struct{}
	done  chan struct{}
}

// NewJournal NewJournal
func NewJournal(config *Config) (*Journal, error) {
	if config.FlushInterval == 0 {
		config.FlushInterval = defaultFlushInterval
	}
	if config.MaxBatch == 0 {
		config.MaxBatch = defaultMaxBatch
	}
	file, err := os.OpenFile(config.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	j := &Journal{
		config: config,
		file:   file,
		flush:  make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go j.loop()
	return j, nil
}

// Write 追加一条记录，记录内不允许换行
func (j *Journal) Write(record []byte) error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return errClosed
	}
	if _, err := j.file.Write(append(record, '\n')); err != nil {
		j.mu.Unlock()
		return err
	}
	j.pending = append(j.pending, bytes.NewBuffer(record))
	full := len(j.pending) >= j.config.MaxBatch
	j.mu.Unlock()

	if full {
		select {
		case j.flush <- struct{}{}:
		default:
		}
	}
	return nil
}

func (j *Journal) loop() {
	ticker := time.NewTicker(j.config.FlushInterval)
	defer func() {
		ticker.Stop()
		close(j.done)
	}()
	for {
		select {
		case <-ticker.C:
			j.flushPending()
		case <-j.flush:
			j.flushPending()
		case <-j.quit:
			j.flushPending()
			return
		}
	}
}

func (j *Journal) flushPending() {
	j.mu.Lock()
	batch := j.pending
	j.pending = nil
	j.mu.Unlock()

	if len(batch) == 0 || j.config.SubFunc == nil {
		return
	}
	if err := j.config.SubFunc(batch); err != nil {
		// 消费失败的批次放回队头，下个周期重试
		j.mu.Lock()
		j.pending = append(batch, j.pending...)
		j.mu.Unlock()
	}
}

// Close flush 剩余记录并关闭文件
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	j.mu.Unlock()

	close(j.quit)
	<-j.done
	return j.file.Close()
}

// Replay 从头读出文件中的全部记录，恢复用
func Replay(file string) ([][]byte, error) {
	f, err := os.Open(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var records [][]byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		record := make([]byte, len(line))
		copy(record, line)
		records = append(records, record)
	}
	return records, scanner.Err()
}
