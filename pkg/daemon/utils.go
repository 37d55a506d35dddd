package daemon

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/podwatch/pkg/airpods"
	"github.com/charlie0129/podwatch/pkg/config"
	"github.com/charlie0129/podwatch/pkg/events"
	"github.com/charlie0129/podwatch/pkg/manager"
	"github.com/charlie0129/podwatch/pkg/protocol"
	"github.com/charlie0129/podwatch/pkg/tracker"
)

// ginLogger logs requests with logrus. Failed requests are logged with their
// errors, the rest at debug level.
func ginLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// other handler can change c.Path so:
		path := c.Request.URL.Path
		start := time.Now()
		c.Next()
		stop := time.Since(start)
		latency := int(math.Ceil(float64(stop.Nanoseconds()) / 1000000.0))
		statusCode := c.Writer.Status()
		dataLength := c.Writer.Size()
		if dataLength < 0 {
			dataLength = 0
		}

		entry := logger.WithFields(logrus.Fields{
			"statusCode": statusCode,
			"latency":    latency,
			"method":     c.Request.Method,
			"path":       path,
			"dataLength": dataLength,
		})

		if len(c.Errors) > 0 {
			entry.Error(c.Errors.ByType(gin.ErrorTypePrivate).String())
			return
		}

		msg := fmt.Sprintf("%s %s %d (%dms)", c.Request.Method, path, statusCode, latency)
		switch {
		case statusCode >= http.StatusInternalServerError:
			entry.Error(msg)
		case statusCode >= http.StatusBadRequest:
			entry.Warn(msg)
		default:
			entry.Debug(msg)
		}
	}
}

func managerOptions(c config.Config, locator manager.DeviceLocator, hub *events.EventHub) manager.Options {
	opts := manager.Options{
		Locator:                locator,
		Hub:                    hub,
		AutomaticEarDetection:  c.AutomaticEarDetection(),
		RequireConnectedDevice: c.RequireConnectedDevice(),
		TrackerOptions: []tracker.Option{
			tracker.WithMinRSSI(c.MinRSSI()),
			tracker.WithMaxRSSIDelta(c.MaxRSSIDelta()),
			tracker.WithMaxBatteryDelta(c.MaxBatteryDelta()),
			tracker.WithLostTimeout(c.LostTimeout()),
			tracker.WithStateResetTimeout(c.StateResetTimeout()),
		},
	}
	if codes, err := protocol.NewLidOpenCodes(c.LidOpenCodes()...); err == nil {
		opts.LidOpenCodes = &codes
	} else {
		logrus.WithError(err).Warn("invalid lid open codes, using defaults")
	}
	return opts
}

// parseBoundAddress turns the configured address into the manager's form.
// An empty string means unbound.
func parseBoundAddress(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return airpods.ParseAddress(s)
}

func applyBoundDevice(s string) error {
	addr, err := parseBoundAddress(s)
	if err != nil {
		return err
	}
	return mgr.OnBoundDeviceAddressChanged(addr)
}

// applyConfig pushes a reloaded config to the manager. The timeouts and
// deltas only take effect after a restart.
func applyConfig(previousBound string) {
	mgr.SetMinRSSI(conf.MinRSSI())
	mgr.SetAutomaticEarDetection(conf.AutomaticEarDetection())
	mgr.SetRequireConnectedDevice(conf.RequireConnectedDevice())
	if codes, err := protocol.NewLidOpenCodes(conf.LidOpenCodes()...); err != nil {
		logrus.WithError(err).Error("invalid lid open codes, keeping the current ones")
	} else {
		mgr.SetLidOpenCodes(codes)
	}

	if bound := conf.BoundDeviceAddress(); bound != previousBound {
		if err := applyBoundDevice(bound); err != nil {
			logrus.WithError(err).Error("failed to bind device from reloaded config")
		}
	}
}
