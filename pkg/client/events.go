package client

import (
	"bufio"
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/podwatch/pkg/events"
)

// SubscribeEvents streams daemon events until ctx is done or the connection
// drops. The returned channel is closed at the end. It does not reconnect.
func (c *Client) SubscribeEvents(ctx context.Context) <-chan events.Event {
	ch := make(chan events.Event, 16)

	go func() {
		defer close(ch)

		req, err := c.newRequest(ctx, http.MethodGet, "/events", "")
		if err != nil {
			logrus.WithError(err).Error("failed to create event request")
			return
		}
		req.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() == nil {
				logrus.WithError(err).Error("failed to subscribe to events")
			}
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			logrus.WithField("statusCode", resp.StatusCode).Error("failed to subscribe to events")
			return
		}

		readEvents(ctx, bufio.NewScanner(resp.Body), ch)
	}()

	return ch
}

// readEvents parses a server-sent event stream. Only the event and data
// fields are used.
func readEvents(ctx context.Context, sc *bufio.Scanner, ch chan<- events.Event) {
	var name string
	var data []string
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			if name != "" || len(data) > 0 {
				ev := events.Event{Name: name, Data: []byte(strings.Join(data, "\n"))}
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			}
			name, data = "", nil
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
		case "data":
			data = append(data, value)
		}
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		logrus.WithError(err).Warn("event stream closed")
	}
}
