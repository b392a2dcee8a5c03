package publishers

import (
	"context"
	"strconv"

	"github.com/Adda-Baaj/khobor-desk/internal/domain"
	"github.com/Adda-Baaj/khobor-desk/internal/logger"
)

// Logger is the logging contract used by publishers.
type Logger = logger.Logger

// Publisher delivers story events to one configured sink.
type Publisher interface {
	ID() string
	Type() string
	Publish(ctx context.Context, evt domain.StoryEvent) error
}

func ensureLogger(log Logger) Logger {
	return logger.Ensure(log)
}

// attributes are attached to queue messages so consumers can filter
// without decoding the body.
func attributes(evt domain.StoryEvent) map[string]string {
	attrs := map[string]string{
		"event_type": evt.Type,
		"story_id":   strconv.FormatInt(evt.StoryID, 10),
	}
	if evt.CompanyID != "" {
		attrs["company_id"] = evt.CompanyID
	}
	return attrs
}
