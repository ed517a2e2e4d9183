package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

type Logger struct {
	output         io.Writer
	minLevel       Level
	categoryWidth  int
	categoryFilter map[string]bool
}

var (
	defaultLogger *Logger
	mu            sync.Mutex
)

func init() {
	defaultLogger = &Logger{
		output:   os.Stdout,
		minLevel: LevelInfo,
	}
}

// RegisterCategories sets the padding width so log lines from different
// categories line up.
func RegisterCategories(categories ...string) {
	mu.Lock()
	defer mu.Unlock()

	maxLen := 0
	for _, cat := range categories {
		if len(cat) > maxLen {
			maxLen = len(cat)
		}
	}
	defaultLogger.categoryWidth = maxLen + 1
}

func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		defaultLogger.output = os.Stdout
	} else {
		defaultLogger.output = w
	}
}

func SetMinLevel(level Level) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger.minLevel = level
}

// SetCategoryFilter restricts output to the given categories. Errors and
// warnings always pass. nil clears the filter.
func SetCategoryFilter(categories []string) {
	mu.Lock()
	defer mu.Unlock()

	if len(categories) == 0 {
		defaultLogger.categoryFilter = nil
		return
	}

	defaultLogger.categoryFilter = make(map[string]bool)
	for _, cat := range categories {
		defaultLogger.categoryFilter[cat] = true
	}
}

func Printf(category string, format string, v ...interface{}) {
	defaultLogger.Printf(category, format, v...)
}

func Error(format string, v ...interface{}) {
	defaultLogger.Printf("error", format, v...)
}

func Warning(format string, v ...interface{}) {
	defaultLogger.Printf("warning", format, v...)
}

func Fatal(format string, v ...interface{}) {
	defaultLogger.Printf("error", format, v...)
	os.Exit(1)
}

func (l *Logger) Printf(category string, format string, v ...interface{}) {
	if !l.shouldLog(category) {
		return
	}

	buf := getBuffer()
	defer putBuffer(buf)

	l.writePrefix(buf, category)
	fmt.Fprintf(buf, format, v...)

	if buf.Len() > 0 && buf.Bytes()[buf.Len()-1] != '\n' {
		buf.WriteByte('\n')
	}

	mu.Lock()
	l.output.Write(buf.Bytes())
	mu.Unlock()
}

func (l *Logger) shouldLog(category string) bool {
	if l.categoryFilter != nil && l.categoryFilter[category] {
		return true
	}
	if levelForCategory(category) < l.minLevel {
		return false
	}
	if l.categoryFilter != nil && category != "error" && category != "warning" {
		return false
	}
	return true
}

func (l *Logger) writePrefix(buf *bytes.Buffer, category string) {
	buf.WriteString(time.Now().Format("2006-01-02 15:04:05"))
	buf.WriteByte(' ')

	buf.WriteString(category)
	for i := len(category); i < l.categoryWidth; i++ {
		buf.WriteByte(' ')
	}
	buf.WriteByte(' ')
}

var bufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

func getBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func putBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 64*1024 {
		return
	}
	bufferPool.Put(buf)
}
