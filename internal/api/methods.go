package api

import (
	"context"

	"github.com/shazow/wifibridge/internal/bridge"
)

// Reply is the payload of a call that has nothing to return.
type Reply struct {
	ReturnValue bool `json:"returnValue"`
}

var okReply = Reply{ReturnValue: true}

type StatusParams struct {
	Subscribe bool `json:"subscribe"`
}

type StateParams struct {
	State string `json:"state"`
}

type ProfileParams struct {
	ProfileID int `json:"profileId"`
}

// ConnectParams is a connect request. wasCreatedWithJoinOther is accepted as
// an alias of hidden.
type ConnectParams struct {
	bridge.ConnectRequest
	WasCreatedWithJoinOther bool `json:"wasCreatedWithJoinOther,omitempty"`
}

type FoundNetwork struct {
	NetworkInfo bridge.NetworkInfo `json:"networkInfo"`
}

type FindNetworksReply struct {
	ReturnValue   bool           `json:"returnValue"`
	FoundNetworks []FoundNetwork `json:"foundNetworks"`
}

type ConnectReply struct {
	ReturnValue bool   `json:"returnValue"`
	ProfileID   int    `json:"profileId,omitempty"`
	SSID        string `json:"ssid,omitempty"`
}

type ProfileReply struct {
	ReturnValue bool               `json:"returnValue"`
	WifiProfile bridge.ProfileInfo `json:"wifiProfile"`
}

type ProfileEntry struct {
	WifiProfile bridge.ProfileInfo `json:"wifiProfile"`
}

type ProfileListReply struct {
	ReturnValue bool           `json:"returnValue"`
	ProfileList []ProfileEntry `json:"profileList"`
}

type InfoReply struct {
	ReturnValue bool        `json:"returnValue"`
	WifiInfo    bridge.Info `json:"wifiInfo"`
}

type PropertiesReply struct {
	ReturnValue bool           `json:"returnValue"`
	Properties  map[string]any `json:"properties"`
}

type AvailableReply struct {
	ReturnValue bool `json:"returnValue"`
	Available   bool `json:"available"`
}

// getStatus answers a one-shot status query. Subscriptions need the websocket
// route since a POST reply cannot carry pushes.
func (s *Server) getStatus(ctx context.Context, body []byte) (any, error) {
	var p StatusParams
	if err := decode(body, &p); err != nil {
		return nil, err
	}
	if p.Subscribe {
		return nil, &bridge.Error{Code: bridge.InvalidRequest, Text: "subscribe requires a websocket connection"}
	}
	st, _, err := s.bridge.GetStatus(ctx, false)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Server) setState(ctx context.Context, body []byte) (any, error) {
	var p StateParams
	if err := decode(body, &p); err != nil {
		return nil, err
	}
	if err := s.bridge.SetState(ctx, p.State); err != nil {
		return nil, err
	}
	return okReply, nil
}

func (s *Server) findNetworks(ctx context.Context, body []byte) (any, error) {
	found, err := s.bridge.FindNetworks(ctx)
	if err != nil {
		return nil, err
	}
	reply := FindNetworksReply{ReturnValue: true, FoundNetworks: make([]FoundNetwork, 0, len(found))}
	for _, n := range found {
		reply.FoundNetworks = append(reply.FoundNetworks, FoundNetwork{NetworkInfo: n})
	}
	return reply, nil
}

// connect holds the HTTP request open until the attempt resolves or the
// caller goes away.
func (s *Server) connect(ctx context.Context, body []byte) (any, error) {
	var p ConnectParams
	if err := decode(body, &p); err != nil {
		return nil, err
	}
	req := p.ConnectRequest
	req.Hidden = req.Hidden || p.WasCreatedWithJoinOther

	results, err := s.bridge.Connect(ctx, req)
	if err != nil {
		return nil, err
	}
	select {
	case res := <-results:
		if !res.Success {
			if res.Err == nil {
				return nil, &bridge.Error{Code: bridge.RemoteError, Text: "connect failed"}
			}
			return nil, res.Err
		}
		return ConnectReply{ReturnValue: true, ProfileID: res.ProfileID, SSID: res.SSID}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Server) getProfile(ctx context.Context, body []byte) (any, error) {
	var p ProfileParams
	if err := decode(body, &p); err != nil {
		return nil, err
	}
	info, err := s.bridge.GetProfile(ctx, p.ProfileID)
	if err != nil {
		return nil, err
	}
	return ProfileReply{ReturnValue: true, WifiProfile: info}, nil
}

func (s *Server) getProfileList(ctx context.Context, body []byte) (any, error) {
	list, err := s.bridge.GetProfileList(ctx)
	if err != nil {
		return nil, err
	}
	reply := ProfileListReply{ReturnValue: true, ProfileList: make([]ProfileEntry, 0, len(list))}
	for _, p := range list {
		reply.ProfileList = append(reply.ProfileList, ProfileEntry{WifiProfile: p})
	}
	return reply, nil
}

func (s *Server) deleteProfile(ctx context.Context, body []byte) (any, error) {
	var p ProfileParams
	if err := decode(body, &p); err != nil {
		return nil, err
	}
	if err := s.bridge.DeleteProfile(ctx, p.ProfileID); err != nil {
		return nil, err
	}
	return okReply, nil
}

func (s *Server) getInfo(ctx context.Context, body []byte) (any, error) {
	info, err := s.bridge.GetInfo(ctx)
	if err != nil {
		return nil, err
	}
	return InfoReply{ReturnValue: true, WifiInfo: info}, nil
}

func (s *Server) getProperties(ctx context.Context, body []byte) (any, error) {
	props, err := s.bridge.Properties(ctx)
	if err != nil {
		return nil, err
	}
	return PropertiesReply{ReturnValue: true, Properties: props}, nil
}

func (s *Server) checkAvailable(ctx context.Context, body []byte) (any, error) {
	available, err := s.bridge.Available(ctx)
	if err != nil {
		return nil, err
	}
	return AvailableReply{ReturnValue: true, Available: available}, nil
}
