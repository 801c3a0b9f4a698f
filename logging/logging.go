package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	rotatelogs "github.com/Velocidex/file-rotatelogs"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"

	"github.com/openfleet/huntmaster/config"
)

var (
	mu      sync.Mutex
	manager *LogManager

	// Tags the origin of each log line.
	FrontendComponent = "frontend"
	ClientComponent   = "client"
	ToolComponent     = "tool"
	GenericComponent  = "generic"

	tag_regex = regexp.MustCompile("<(/?[a-z]+)>")
)

type LogContext struct {
	*logrus.Logger
}

func (self *LogContext) Info(format string, v ...interface{}) {
	if self.Logger != nil {
		self.Logger.Info(clearTag(fmt.Sprintf(format, v...)))
	}
}

func (self *LogContext) Warn(format string, v ...interface{}) {
	if self.Logger != nil {
		self.Logger.Warn(clearTag(fmt.Sprintf(format, v...)))
	}
}

func (self *LogContext) Error(format string, v ...interface{}) {
	if self.Logger != nil {
		self.Logger.Error(clearTag(fmt.Sprintf(format, v...)))
	}
}

func (self *LogContext) Debug(format string, v ...interface{}) {
	if self.Logger != nil {
		self.Logger.Debug(clearTag(fmt.Sprintf(format, v...)))
	}
}

// Log messages may carry simple color markup for terminal output.
// Outside a tty we strip it.
func clearTag(message string) string {
	return tag_regex.ReplaceAllString(message, "")
}

type LogManager struct {
	mu       sync.Mutex
	contexts map[string]*LogContext
}

func (self *LogManager) GetLogger(
	config_obj *config.Config, component string) *LogContext {
	self.mu.Lock()
	defer self.mu.Unlock()

	ctx, pres := self.contexts[component]
	if !pres {
		ctx = self.makeNewComponent(config_obj, component)
		self.contexts[component] = ctx
	}
	return ctx
}

func (self *LogManager) makeNewComponent(
	config_obj *config.Config, component string) *LogContext {

	logger := logrus.New()
	logger.Out = os.Stderr
	logger.Level = logrus.InfoLevel
	logger.Formatter = &logrus.TextFormatter{
		DisableColors:   false,
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	}

	if config_obj != nil && config_obj.Logging != nil {
		if config_obj.Logging.Debug {
			logger.Level = logrus.DebugLevel
		}

		if config_obj.Logging.OutputDirectory != "" {
			hook, err := makeFileHook(config_obj, component)
			if err == nil {
				logger.Hooks.Add(hook)
			}
		}
	}

	return &LogContext{logger}
}

// Rotated log files under the configured output directory, one set
// per component if so configured.
func makeFileHook(
	config_obj *config.Config, component string) (logrus.Hook, error) {

	base := component
	if !config_obj.Logging.SeparateLogsPerComponent {
		base = "huntmaster"
	}

	pathmap := lfshook.WriterMap{}
	for _, level := range []logrus.Level{
		logrus.InfoLevel, logrus.WarnLevel,
		logrus.ErrorLevel, logrus.DebugLevel} {

		writer, err := rotatelogs.New(
			filepath.Join(config_obj.Logging.OutputDirectory,
				fmt.Sprintf("%s.log.%%Y%%m%%d", base)),
			rotatelogs.WithRotationTime(24*time.Hour),
			rotatelogs.WithMaxAge(7*24*time.Hour),
		)
		if err != nil {
			return nil, err
		}
		pathmap[level] = writer
	}

	return lfshook.NewHook(pathmap, &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	}), nil
}

func GetLogger(config_obj *config.Config, component string) *LogContext {
	mu.Lock()
	defer mu.Unlock()

	if manager == nil {
		manager = &LogManager{
			contexts: make(map[string]*LogContext),
		}
	}
	return manager.GetLogger(config_obj, component)
}
