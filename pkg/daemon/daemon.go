package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/podwatch/pkg/airpods"
	"github.com/charlie0129/podwatch/pkg/bluez"
	"github.com/charlie0129/podwatch/pkg/config"
	"github.com/charlie0129/podwatch/pkg/events"
	"github.com/charlie0129/podwatch/pkg/manager"
	"github.com/charlie0129/podwatch/pkg/scanner"
)

var (
	conf   config.Config
	mgr    *manager.Manager
	sseHub *events.EventHub
)

func setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/state", getState)
	router.GET("/config", getConfig)
	router.PUT("/min-rssi", setMinRSSI)
	router.PUT("/automatic-ear-detection", setAutomaticEarDetection)
	router.PUT("/bound-device", setBoundDevice)
	router.PUT("/lid-open-codes", setLidOpenCodes)
	router.POST("/disconnect", postDisconnect)
	router.GET("/advertisement", getAdvertisement)
	router.GET("/events", getEvents)
	router.GET("/version", getVersion)

	return router
}

func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	router := setupRoutes()

	var err error
	conf, err = config.NewFile(configPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	sseHub = events.NewEventHub()

	var locator manager.DeviceLocator
	if l, err := bluez.NewLocator(); err != nil {
		logrus.WithError(err).Warn("bluez unavailable, the bound device is assumed to be connected")
	} else {
		locator = l
	}

	mgr = manager.New(managerOptions(conf, locator, sseHub))
	if err := applyBoundDevice(conf.BoundDeviceAddress()); err != nil {
		logrus.WithError(err).Error("failed to bind device from config")
	}

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			bound := conf.BoundDeviceAddress()
			err := conf.Load()
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			applyConfig(bound)
			logrus.WithFields(conf.LogrusFields()).Infof("config reloaded")
		}
	}()

	srv := &http.Server{
		Handler: router,
	}

	// Create the socket to listen on:
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	if conf.AllowNonRootAccess() || allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0777)
		if err != nil {
			logrus.Fatal(err)
		}
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	scanCtx, stopScan := context.WithCancel(context.Background())
	scanDone := make(chan struct{})
	s, err := scanner.New(conf.Scanner())
	if err != nil {
		logrus.Fatal(err)
	}
	go func() {
		defer close(scanDone)
		runScanner(scanCtx, s)
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	logrus.Info("stopping scanner")
	stopScan()
	select {
	case <-scanDone:
	case <-time.After(5 * time.Second):
		logrus.Warn("scanner did not stop in time")
	}

	// Event streams only end when the hub is closed.
	sseHub.Close()

	logrus.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(ctx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	mgr.Close()

	logrus.Info("exiting")
	return nil
}

// runScanner feeds the manager until ctx is done or the scanner fails. A
// failed scanner is not restarted.
func runScanner(ctx context.Context, s scanner.Scanner) {
	mgr.OnScannerStateChanged(events.ScannerStarted, nil)
	err := s.Run(ctx, func(data airpods.ReceivedData) {
		mgr.OnAdvertisementReceived(data)
	})
	if err != nil {
		logrus.WithError(err).Error("scanner failed")
	}
	mgr.OnScannerStateChanged(events.ScannerStopped, err)
}
