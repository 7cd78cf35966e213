package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/shazow/wifibridge/internal/api"
	"github.com/shazow/wifibridge/internal/bridge"
)

func writeStatus(w io.Writer, st bridge.Status) {
	fmt.Fprintf(w, "Status: %s\n", st.Status)
	n := st.NetworkInfo
	if n == nil {
		fmt.Fprintln(w, "Network: none")
		return
	}
	fmt.Fprintf(w, "Network: %s\n", n.SSID)
	if n.ProfileID != 0 {
		fmt.Fprintf(w, "Profile: %d\n", n.ProfileID)
	}
	fmt.Fprintf(w, "State: %s\n", n.ConnectState)
	fmt.Fprintf(w, "Signal: %s %d%%\n", signalBars(n.SignalBars), n.SignalLevel)
	if ip := st.IPInfo; ip != nil {
		fmt.Fprintf(w, "Address: %s/%s on %s\n", ip.IP, ip.Subnet, ip.Interface)
		fmt.Fprintf(w, "Gateway: %s\n", ip.Gateway)
		if ip.DNS1 != "" {
			fmt.Fprintf(w, "DNS: %s\n", ip.DNS1)
		}
	}
}

func runStatus(ctx context.Context, w io.Writer, asJSON bool, c *api.Client) error {
	var st bridge.Status
	if err := c.Call(ctx, "getstatus", nil, &st); err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	if asJSON {
		return writeJSON(w, st)
	}
	writeStatus(w, st)
	return nil
}

// runWatch prints every status push until ctx is done.
func runWatch(ctx context.Context, w io.Writer, asJSON bool, c *api.Client) error {
	err := c.Subscribe(ctx, func(st bridge.Status) error {
		if asJSON {
			return writeJSON(w, st)
		}
		fmt.Fprintf(w, "--- %s\n", time.Now().Format(time.TimeOnly))
		writeStatus(w, st)
		return nil
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func runSetState(ctx context.Context, w io.Writer, state string, c *api.Client) error {
	if err := c.Call(ctx, "setstate", api.StateParams{State: state}, nil); err != nil {
		return fmt.Errorf("failed to set state: %w", err)
	}
	fmt.Fprintf(w, "WiFi %s\n", state)
	return nil
}

func runScan(ctx context.Context, w io.Writer, asJSON bool, c *api.Client) error {
	var reply api.FindNetworksReply
	if err := c.Call(ctx, "findnetworks", nil, &reply); err != nil {
		return fmt.Errorf("failed to list networks: %w", err)
	}
	if asJSON {
		return writeJSON(w, reply.FoundNetworks)
	}
	for _, f := range reply.FoundNetworks {
		fmt.Fprintf(w, "%s\t%s\n", f.NetworkInfo.SSID, formatNetwork(f.NetworkInfo))
	}
	return nil
}

type connectOptions struct {
	ProfileID  int
	Security   string
	Passphrase string
	KeyIndex   int // negative when unset
	Hex        bool
	Hidden     bool
}

// connectParams builds a connect request for ssid, or for a profile when
// opts.ProfileID is set. A passphrase without a security type implies
// wpa-personal.
func connectParams(ssid string, opts connectOptions) (api.ConnectParams, error) {
	if opts.ProfileID != 0 {
		if ssid != "" {
			return api.ConnectParams{}, fmt.Errorf("connect takes either an ssid or -profile, not both")
		}
		return api.ConnectParams{ConnectRequest: bridge.ConnectRequest{ProfileID: opts.ProfileID}}, nil
	}
	if ssid == "" {
		return api.ConnectParams{}, fmt.Errorf("connect requires an ssid or -profile")
	}

	p := api.ConnectParams{ConnectRequest: bridge.ConnectRequest{SSID: ssid, Hidden: opts.Hidden}}
	security := opts.Security
	if security == "" && opts.Passphrase != "" {
		security = "wpa-personal"
	}
	if security == "" {
		return p, nil
	}
	p.Security = &bridge.SecurityRequest{SecurityType: security}
	if opts.Passphrase != "" || opts.KeyIndex >= 0 {
		simple := &bridge.SimpleSecurity{PassKey: opts.Passphrase, IsInHex: opts.Hex}
		if opts.KeyIndex >= 0 {
			keyIndex := opts.KeyIndex
			simple.KeyIndex = &keyIndex
		}
		p.Security.SimpleSecurity = simple
	}
	return p, nil
}

func runConnect(ctx context.Context, w io.Writer, params api.ConnectParams, c *api.Client) error {
	start := time.Now()
	var reply api.ConnectReply
	if err := c.Call(ctx, "connect", params, &reply); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	fmt.Fprintf(w, "Connected to %s (profile %d) in %s\n", reply.SSID, reply.ProfileID, time.Since(start).Round(time.Millisecond))
	return nil
}

func formatProfile(p bridge.ProfileInfo) string {
	security := "open"
	if len(p.Security) > 0 {
		security = fmt.Sprint(p.Security)
	}
	return fmt.Sprintf("%d\t%s\t%s", p.ProfileID, p.SSID, security)
}

func runProfiles(ctx context.Context, w io.Writer, asJSON bool, c *api.Client) error {
	var reply api.ProfileListReply
	if err := c.Call(ctx, "getprofilelist", nil, &reply); err != nil {
		return fmt.Errorf("failed to list profiles: %w", err)
	}
	if asJSON {
		return writeJSON(w, reply.ProfileList)
	}
	for _, p := range reply.ProfileList {
		fmt.Fprintln(w, formatProfile(p.WifiProfile))
	}
	return nil
}

func runProfile(ctx context.Context, w io.Writer, asJSON bool, id int, c *api.Client) error {
	var reply api.ProfileReply
	if err := c.Call(ctx, "getprofile", api.ProfileParams{ProfileID: id}, &reply); err != nil {
		return fmt.Errorf("failed to get profile %d: %w", id, err)
	}
	if asJSON {
		return writeJSON(w, reply.WifiProfile)
	}
	fmt.Fprintln(w, formatProfile(reply.WifiProfile))
	return nil
}

func runForget(ctx context.Context, w io.Writer, id int, c *api.Client) error {
	if err := c.Call(ctx, "deleteprofile", api.ProfileParams{ProfileID: id}, nil); err != nil {
		return fmt.Errorf("failed to forget profile %d: %w", id, err)
	}
	fmt.Fprintf(w, "Forgot profile %d\n", id)
	return nil
}

func runInfo(ctx context.Context, w io.Writer, asJSON bool, c *api.Client) error {
	var reply api.InfoReply
	if err := c.Call(ctx, "getinfo", nil, &reply); err != nil {
		return fmt.Errorf("failed to get info: %w", err)
	}
	if asJSON {
		return writeJSON(w, reply.WifiInfo)
	}
	info := reply.WifiInfo
	fmt.Fprintf(w, "MAC address: %s\n", info.MacAddress)
	fmt.Fprintf(w, "Wake on WLAN: %s\n", info.WakeOnWlan)
	fmt.Fprintf(w, "WMM: %s\n", info.WMM)
	fmt.Fprintf(w, "Roaming: %s\n", info.Roaming)
	fmt.Fprintf(w, "Power save: %s\n", info.PowerSave)
	return nil
}

func runProperties(ctx context.Context, w io.Writer, asJSON bool, c *api.Client) error {
	var available api.AvailableReply
	if err := c.Call(ctx, "manager/checkavailable", nil, &available); err != nil {
		return fmt.Errorf("failed to check availability: %w", err)
	}
	if !available.Available {
		return fmt.Errorf("remote network service is not available")
	}

	var reply api.PropertiesReply
	if err := c.Call(ctx, "manager/getproperties", nil, &reply); err != nil {
		return fmt.Errorf("failed to get properties: %w", err)
	}
	if asJSON {
		return writeJSON(w, reply.Properties)
	}
	keys := make([]string, 0, len(reply.Properties))
	for k := range reply.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%v\n", k, reply.Properties[k])
	}
	return nil
}
