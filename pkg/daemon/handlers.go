package daemon

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/podwatch/pkg/airpods"
	"github.com/charlie0129/podwatch/pkg/config"
	"github.com/charlie0129/podwatch/pkg/protocol"
	"github.com/charlie0129/podwatch/pkg/version"
)

func badRequest(c *gin.Context, err error) {
	c.IndentedJSON(http.StatusBadRequest, err.Error())
	_ = c.AbortWithError(http.StatusBadRequest, err)
}

func saveConfig(c *gin.Context) bool {
	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return false
	}
	return true
}

func getState(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, mgr.Status())
}

func getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func setMinRSSI(c *gin.Context) {
	var rssi int
	if err := c.BindJSON(&rssi); err != nil {
		badRequest(c, err)
		return
	}

	if rssi < -127 || rssi > 0 {
		badRequest(c, fmt.Errorf("minimum RSSI must be between -127 and 0, got %d", rssi))
		return
	}

	conf.SetMinRSSI(int16(rssi))
	if !saveConfig(c) {
		return
	}
	mgr.SetMinRSSI(int16(rssi))

	logrus.Infof("set minimum RSSI to %d dBm", rssi)

	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("set minimum RSSI to %d dBm", rssi))
}

func setAutomaticEarDetection(c *gin.Context) {
	var enabled bool
	if err := c.BindJSON(&enabled); err != nil {
		badRequest(c, err)
		return
	}

	conf.SetAutomaticEarDetection(enabled)
	if !saveConfig(c) {
		return
	}
	mgr.SetAutomaticEarDetection(enabled)

	logrus.Infof("set automatic ear detection to %t", enabled)

	c.IndentedJSON(http.StatusCreated, "ok")
}

func setBoundDevice(c *gin.Context) {
	var s string
	if err := c.BindJSON(&s); err != nil {
		badRequest(c, err)
		return
	}

	addr, err := parseBoundAddress(s)
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := mgr.OnBoundDeviceAddressChanged(addr); err != nil {
		badRequest(c, err)
		return
	}

	bound := ""
	if addr != 0 {
		bound = airpods.FormatAddress(addr)
	}
	conf.SetBoundDeviceAddress(bound)
	if !saveConfig(c) {
		return
	}

	if addr == 0 {
		c.IndentedJSON(http.StatusCreated, "device unbound")
		return
	}
	msg := fmt.Sprintf("bound to %s", bound)
	if name := mgr.DisplayName(); name != "" {
		msg = fmt.Sprintf("bound to %s (%s)", name, bound)
	}
	c.IndentedJSON(http.StatusCreated, msg)
}

func setLidOpenCodes(c *gin.Context) {
	var codes []int
	if err := c.BindJSON(&codes); err != nil {
		badRequest(c, err)
		return
	}

	if _, err := protocol.NewLidOpenCodes(codes...); err != nil {
		badRequest(c, err)
		return
	}

	// An empty list restores the default table.
	conf.SetLidOpenCodes(codes)
	if !saveConfig(c) {
		return
	}
	table := protocol.MustLidOpenCodes(conf.LidOpenCodes()...)
	mgr.SetLidOpenCodes(table)

	logrus.WithField("codes", table.Codes()).Info("set lid open codes")

	c.IndentedJSON(http.StatusCreated, "ok")
}

func postDisconnect(c *gin.Context) {
	mgr.Disconnect()
	c.IndentedJSON(http.StatusCreated, "ok")
}

func getAdvertisement(c *gin.Context) {
	info, ok := mgr.LastAdvertisement()
	if !ok {
		c.IndentedJSON(http.StatusNotFound, "no advertisement received yet")
		return
	}
	c.IndentedJSON(http.StatusOK, info)
}

// getEvents streams hub events as server-sent events until the client goes
// away or the hub is closed.
func getEvents(c *gin.Context) {
	ch := sseHub.Subscribe()
	defer sseHub.Unsubscribe(ch)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	// Send the headers now so clients see the stream before the first event.
	c.Status(http.StatusOK)
	c.Writer.Flush()

	c.Stream(func(_ io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}
