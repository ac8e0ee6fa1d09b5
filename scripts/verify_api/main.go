package main

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type delivery struct {
	Name string   `json:"name"`
	URIs []string `json:"uris"`
}

type link struct {
	Href string `json:"href"`
}

func call(method, url string, body interface{}, want int, out interface{}) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, url)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		return errors.Errorf("%s %s: got %d want %d: %s", method, url, resp.StatusCode, want, string(data))
	}
	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}

func main() {
	apiAddr := pflag.String("api", "http://localhost:8081", "api service address")
	gatewayAddr := pflag.String("gateway", "http://localhost:8080", "gateway service address")
	listen := pflag.String("listen", "127.0.0.1:9099", "address for the local webhook receiver")
	callbackHost := pflag.String("callback-host", "", "host the webhooks service uses to reach the receiver (defaults to --listen)")
	pflag.Parse()

	channel := fmt.Sprintf("verify-%d", time.Now().Unix())
	received := make(chan delivery, 16)

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		logrus.WithError(err).Fatal("listen")
	}
	go func() {
		_ = http.Serve(ln, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var d delivery
			if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			received <- d
		}))
	}()
	host := *callbackHost
	if host == "" {
		host = *listen
	}

	// 1. Channel
	logrus.Infof("Creating channel %s...", channel)
	if err := call(http.MethodPut, *apiAddr+"/channel/"+channel, map[string]string{"description": "verify_api"}, http.StatusCreated, nil); err != nil {
		logrus.Fatal(err)
	}
	defer func() {
		if err := call(http.MethodDelete, *apiAddr+"/channel/"+channel, nil, http.StatusAccepted, nil); err != nil {
			logrus.WithError(err).Warn("cleanup")
		}
	}()

	// 2. Webhook
	logrus.Info("Registering webhook...")
	hook := map[string]string{
		"callbackUrl": "http://" + host + "/",
		"channel":     channel,
	}
	if err := call(http.MethodPut, *apiAddr+"/webhook/"+channel, hook, http.StatusCreated, nil); err != nil {
		logrus.Fatal(err)
	}

	// 3. Item
	var inserted struct {
		Links struct {
			Self link `json:"self"`
		} `json:"_links"`
	}
	resp, err := http.Post(*gatewayAddr+"/channel/"+channel, "text/plain", strings.NewReader("hello"))
	if err != nil {
		logrus.Fatal(err)
	}
	if err := json.NewDecoder(resp.Body).Decode(&inserted); err != nil {
		logrus.Fatal(err)
	}
	resp.Body.Close()
	uri := inserted.Links.Self.Href
	logrus.Infof("Inserted %s", uri)

	// 4. Range
	var day struct {
		Links struct {
			URIs []string `json:"uris"`
		} `json:"_links"`
	}
	key := uri[strings.Index(uri, "/channel/"+channel+"/")+len("/channel/"+channel+"/"):]
	dayURL := *gatewayAddr + "/channel/" + channel + "/" + key[:len("2006/01/02")]
	if err := call(http.MethodGet, dayURL, nil, http.StatusOK, &day); err != nil {
		logrus.Fatal(err)
	}
	logrus.Infof("Day range: %v", day.Links.URIs)

	// 5. Delivery
	select {
	case d := <-received:
		if len(d.URIs) == 0 || d.URIs[0] != uri {
			logrus.Fatalf("unexpected delivery %+v", d)
		}
		logrus.Infof("Webhook %s delivered %v", d.Name, d.URIs)
	case <-time.After(30 * time.Second):
		logrus.Fatal("no webhook delivery within 30s")
	}
}
