package main

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type insertResponse struct {
	Links struct {
		Self struct {
			Href string `json:"href"`
		} `json:"self"`
	} `json:"_links"`
	Key string `json:"key"`
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

// ensureChannel creates the channel through the api service, treating "already exists" as success.
func ensureChannel(apiAddr, channel string) error {
	req, err := http.NewRequest(http.MethodPut, strings.TrimRight(apiAddr, "/")+"/channel/"+channel, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "create channel")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusConflict {
		body, _ := io.ReadAll(resp.Body)
		return errors.Errorf("create channel failed: %s", string(body))
	}
	return nil
}

func postItem(gatewayAddr, channel, text string) (string, error) {
	resp, err := httpClient.Post(strings.TrimRight(gatewayAddr, "/")+"/channel/"+channel, "text/plain", strings.NewReader(text))
	if err != nil {
		return "", errors.Wrap(err, "post item")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", errors.Errorf("post failed: %s", string(body))
	}

	var ret insertResponse
	if err := json.NewDecoder(resp.Body).Decode(&ret); err != nil {
		return "", errors.Wrap(err, "decode response")
	}
	return ret.Links.Self.Href, nil
}

func fetchItem(uri string) (string, error) {
	resp, err := httpClient.Get(uri)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("fetch %s: %s", uri, resp.Status)
	}
	return string(body), nil
}

// wsURL maps the gateway address and a scope such as 2024/01/02 to the websocket endpoint.
func wsURL(gatewayAddr, channel, scope string) (string, error) {
	u, err := url.Parse(gatewayAddr)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	path := "/channel/" + channel
	if scope = strings.Trim(scope, "/"); scope != "" {
		path += "/" + scope
	}
	u.Path = strings.TrimRight(u.Path, "/") + path + "/ws"
	return u.String(), nil
}

func main() {
	gatewayAddr := pflag.String("gateway", "http://localhost:8080", "gateway service address")
	apiAddr := pflag.String("api", "http://localhost:8081", "api service address")
	channel := pflag.StringP("channel", "c", "general", "channel name")
	scope := pflag.String("scope", "", "only listen to a time bucket, e.g. 2024/01/02 or 2024/01/02/15")
	create := pflag.Bool("create", false, "create the channel before connecting")
	fetch := pflag.Bool("fetch", true, "fetch and print the content of each new item")
	pflag.Parse()

	if *create {
		if err := ensureChannel(*apiAddr, *channel); err != nil {
			logrus.WithError(err).Fatal("Unable to create channel")
		}
	}

	target, err := wsURL(*gatewayAddr, *channel, *scope)
	if err != nil {
		logrus.WithError(err).Fatal("Bad gateway address")
	}
	logrus.Infof("connecting to %s", target)
	c, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		logrus.WithError(err).Fatal("dial")
	}
	defer c.Close()

	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				logrus.WithError(err).Info("read")
				return
			}
			uri := string(message)
			if !*fetch {
				fmt.Printf("\r%s\n> ", uri)
				continue
			}
			content, err := fetchItem(uri)
			if err != nil {
				fmt.Printf("\r%s (%v)\n> ", uri, err)
				continue
			}
			fmt.Printf("\r%s: %s\n> ", uri, content)
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			text := scanner.Text()
			if text == "" {
				fmt.Print("> ")
				continue
			}
			if text == "/quit" {
				interrupt <- os.Interrupt
				return
			}
			if _, err := postItem(*gatewayAddr, *channel, text); err != nil {
				logrus.WithError(err).Warn("post")
			}
		}
	}()

	select {
	case <-done:
	case <-interrupt:
		logrus.Info("interrupt")
		err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			logrus.WithError(err).Info("write close")
			return
		}
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}
