package client

import (
	"encoding/json"
	"errors"
	"strconv"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/podwatch/pkg/config"
	"github.com/charlie0129/podwatch/pkg/manager"
)

// unquote strips the JSON string around a daemon message.
func unquote(ret string) string {
	var s string
	if err := json.Unmarshal([]byte(ret), &s); err != nil {
		return ret
	}
	return s
}

func (c *Client) GetStatus() (*manager.Status, error) {
	ret, err := c.Get("/state")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get state")
	}

	var st manager.Status
	if err := json.Unmarshal([]byte(ret), &st); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal state")
	}
	return &st, nil
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}

	var conf config.RawFileConfig
	if err := json.Unmarshal([]byte(ret), &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal config")
	}

	return &conf, nil
}

func (c *Client) SetMinRSSI(rssi int) (string, error) {
	ret, err := c.Put("/min-rssi", strconv.Itoa(rssi))
	return unquote(ret), err
}

func (c *Client) SetAutomaticEarDetection(enabled bool) (string, error) {
	ret, err := c.Put("/automatic-ear-detection", strconv.FormatBool(enabled))
	return unquote(ret), err
}

// Bind binds the device with the given Bluetooth address.
func (c *Client) Bind(addr string) (string, error) {
	ret, err := c.Put("/bound-device", strconv.Quote(addr))
	return unquote(ret), err
}

func (c *Client) Unbind() (string, error) {
	return c.Bind("")
}

func (c *Client) SetLidOpenCodes(codes []int) (string, error) {
	if codes == nil {
		codes = []int{}
	}
	payload, err := json.Marshal(codes)
	if err != nil {
		return "", err
	}
	ret, err := c.Put("/lid-open-codes", string(payload))
	return unquote(ret), err
}

func (c *Client) Disconnect() (string, error) {
	ret, err := c.Post("/disconnect", "")
	return unquote(ret), err
}

// GetAdvertisement returns the last advertisement seen by the daemon. It
// returns nil without an error if there is none yet.
func (c *Client) GetAdvertisement() (*manager.AdvertisementInfo, error) {
	ret, err := c.Get("/advertisement")
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get advertisement")
	}

	var info manager.AdvertisementInfo
	if err := json.Unmarshal([]byte(ret), &info); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal advertisement")
	}
	return &info, nil
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	return unquote(ret), nil
}
