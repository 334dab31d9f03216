package mqtt

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/golang/glog"
)

// BridgeInfo is published retained on the meta topic of a bridge.
type BridgeInfo struct {
	ID          string            `json:"id"`
	Description string            `json:"description,omitempty"`
	Device      string            `json:"device,omitempty"`
	Endpoints   []string          `json:"endpoints,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// Registrar announces a bridge on the broker. The announcement is cleared
// by the broker through a will message if the bridge disappears.
type Registrar struct {
	Queue *Queue
	Info  BridgeInfo

	metaJSON []byte
}

// NewRegistrar creates a Registrar. The queue is not connected.
func NewRegistrar(brokerURL string, info BridgeInfo) (*Registrar, error) {
	meta, err := json.Marshal(&info)
	if err != nil {
		return nil, err
	}
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(topicPrefix+MetaTopic(info.ID), nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("fpm-bridge:" + info.ID)
	}
	r := &Registrar{
		Queue:    NewQueue(opts, topicPrefix),
		Info:     info,
		metaJSON: meta,
	}
	r.Queue.OnConnect = func(q *Queue) {
		q.PubWith(MetaTopic(info.ID), r.metaJSON, 1, true)
	}
	return r, nil
}

// Run implements Runnable. It keeps the bridge announced until ctx is done.
func (r *Registrar) Run(ctx context.Context) error {
	token := r.Queue.Connect()
	if token.Wait(); token.Error() != nil {
		return token.Error()
	}
	<-ctx.Done()
	r.Queue.PubWith(MetaTopic(r.Info.ID), nil, 1, true).Wait()
	r.Queue.Close()
	return nil
}

// Discover lists bridges announced on the broker. It collects retained
// announcements until timeout.
func Discover(ctx context.Context, brokerURL string, timeout time.Duration) ([]BridgeInfo, error) {
	q, err := NewQueueFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	token := q.Connect()
	if token.Wait(); token.Error() != nil {
		return nil, token.Error()
	}
	defer q.Close()

	infoCh := make(chan BridgeInfo, 16)
	q.Sub("+/"+metaTopic, func(topic string, payload []byte) {
		if len(payload) == 0 {
			return
		}
		var info BridgeInfo
		if err := json.Unmarshal(payload, &info); err != nil {
			glog.Warningf("bad bridge meta on %q: %v", topic, err)
			return
		}
		if info.ID == "" {
			info.ID = strings.SplitN(topic, "/", 2)[0]
		}
		select {
		case infoCh <- info:
		case <-time.After(timeout):
		}
	})

	found := make(map[string]BridgeInfo)
	expired := time.After(timeout)
	for {
		select {
		case info := <-infoCh:
			found[info.ID] = info
		case <-expired:
			return sortedInfo(found), nil
		case <-ctx.Done():
			return sortedInfo(found), ctx.Err()
		}
	}
}

func sortedInfo(found map[string]BridgeInfo) []BridgeInfo {
	list := make([]BridgeInfo, 0, len(found))
	for _, info := range found {
		list = append(list, info)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}
