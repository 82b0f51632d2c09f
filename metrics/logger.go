package metrics

import (
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Logger interface {
	Log(info *ConversionInfo)
}

// ZerologLogger writes the record as a "metrics" field of one log event.
type ZerologLogger struct {
	log zerolog.Logger
}

func NewZerologLogger(log zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{log: log}
}

func (l *ZerologLogger) Log(info *ConversionInfo) {
	infoStr, err := info.ToJSON()
	if err != nil {
		l.log.Error().Err(err).Msg("metrics encoding failed")
		return
	}
	l.log.Info().RawJSON("metrics", []byte(strings.TrimSpace(infoStr))).Msg("conversion finished")
}

const defaultQueueSize = 64
const defaultMaxLogFileSize = 64 * 1024 * 1024
const defaultMaxLogFiles = 10

// FileLogger appends records to LogDir/metrics.log, rotating it into
// metrics.log.N once it reaches MaxLogFileSize. At most MaxLogFiles
// rotated files are kept; the oldest is overwritten after that.
type FileLogger struct {
	MetricsQueue   chan *ConversionInfo
	LogDir         string
	MaxLogFileSize int64
	MaxLogFiles    int
	log            zerolog.Logger
	done           sync.WaitGroup
}

func NewFileLogger(logDir string, maxLogFileSize int64, maxLogFiles int, log zerolog.Logger) (*FileLogger, error) {
	if maxLogFileSize <= 0 {
		maxLogFileSize = defaultMaxLogFileSize
	}
	if maxLogFiles <= 0 {
		maxLogFiles = defaultMaxLogFiles
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, err
	}
	logger := &FileLogger{
		MetricsQueue:   make(chan *ConversionInfo, defaultQueueSize),
		LogDir:         logDir,
		MaxLogFileSize: maxLogFileSize,
		MaxLogFiles:    maxLogFiles,
		log:            log,
	}
	logger.done.Add(1)
	go logger.startLogWriter()
	return logger, nil
}

func (l *FileLogger) Log(info *ConversionInfo) {
	l.MetricsQueue <- info
}

// Close flushes queued records and stops the writer.
func (l *FileLogger) Close() {
	close(l.MetricsQueue)
	l.done.Wait()
}

func (l *FileLogger) logFilePath() string {
	return path.Join(l.LogDir, "metrics.log")
}

func (l *FileLogger) startLogWriter() {
	defer l.done.Done()
	f, err := l.openLogFile()
	if err != nil {
		l.log.Error().Err(err).Msg("FileLogger: log open error")
	}

	for info := range l.MetricsQueue {
		infoStr, err := info.ToJSON()
		if err != nil {
			l.log.Error().Err(err).Msg("FileLogger: info.ToJSON() error")
			continue
		}
		if f != nil {
			f, err = l.tryRotateLogFile(f)
		} else {
			f, err = l.openLogFile()
		}
		if err != nil {
			continue
		}

		if _, err := f.WriteString(infoStr); err != nil {
			l.log.Error().Err(err).Msg("FileLogger: write error")
			continue
		}
		f.Sync()
	}
	if f != nil {
		f.Close()
	}
}

func (l *FileLogger) openLogFile() (*os.File, error) {
	return os.OpenFile(l.logFilePath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

func (l *FileLogger) tryRotateLogFile(currFile *os.File) (*os.File, error) {
	info, err := currFile.Stat()
	if err != nil {
		l.log.Error().Err(err).Msg("FileLogger: log rotation error")
		return currFile, nil
	}
	if info.Size() < l.MaxLogFileSize {
		return currFile, nil
	}

	var rotatedLogFilePath string
	for i := 0; i < l.MaxLogFiles; i++ {
		filePath := fmt.Sprintf("%s.%d", l.logFilePath(), i)
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			rotatedLogFilePath = filePath
			break
		}
	}

	if len(rotatedLogFilePath) == 0 {
		files, err := ioutil.ReadDir(l.LogDir)
		if err != nil {
			l.log.Error().Err(err).Msg("FileLogger: log rotation error")
			return currFile, nil
		}

		var oldestFile os.FileInfo
		oldestTime := time.Now()
		for _, file := range files {
			if !file.Mode().IsRegular() {
				continue
			}
			fileName := filepath.Base(file.Name())
			if strings.TrimSuffix(fileName, path.Ext(fileName)) != "metrics.log" {
				continue
			}
			if file.ModTime().Before(oldestTime) {
				oldestFile = file
				oldestTime = file.ModTime()
			}
		}

		if oldestFile != nil {
			rotatedLogFilePath = path.Join(l.LogDir, oldestFile.Name())
		} else {
			rotatedLogFilePath = l.logFilePath() + ".0"
		}
		l.log.Debug().Str("path", rotatedLogFilePath).Msg("FileLogger: maximum number of log files reached, overwriting")
		if err := os.Remove(rotatedLogFilePath); err != nil {
			l.log.Error().Err(err).Msg("FileLogger: log rotation error")
			return currFile, nil
		}
	}

	currFile.Close()
	if err := os.Rename(l.logFilePath(), rotatedLogFilePath); err != nil {
		l.log.Error().Err(err).Msg("FileLogger: log rotation error")
	}
	l.log.Debug().Str("path", rotatedLogFilePath).Msg("FileLogger: log file rotated")

	f, err := l.openLogFile()
	if err != nil {
		l.log.Error().Err(err).Msg("FileLogger: log rotation error")
	}
	return f, err
}
