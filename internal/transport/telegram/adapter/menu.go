package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"

	kit "planbot/internal/transport"
	logx "planbot/pkg/logx"
)

const (
	menuMaxCommands = 100 // Telegram setMyCommands hard cap
	menuMaxDescLen  = 256
)

// UpdateMenuCommands publishes the bot command menu. Telegram rejects nothing
// on a no-op update but each call still costs an API round trip, so identical
// menus are skipped via a content hash.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	if len(cmds) > menuMaxCommands {
		cmds = cmds[:menuMaxCommands]
	}

	type apiCmd struct {
		Command     string `json:"command"`
		Description string `json:"description"`
	}
	payload := struct {
		Commands []apiCmd `json:"commands"`
	}{Commands: make([]apiCmd, 0, len(cmds))}

	h := fnv.New64a()
	for _, c := range cmds {
		desc := c.Description
		if len(desc) > menuMaxDescLen {
			desc = desc[:menuMaxDescLen]
		}
		payload.Commands = append(payload.Commands, apiCmd{Command: c.Command, Description: desc})
		io.WriteString(h, c.Command)
		io.WriteString(h, "\x00")
		io.WriteString(h, desc)
		io.WriteString(h, "\x01")
	}
	sum := h.Sum64()

	a.menuMu.Lock()
	if a.menuHash == sum {
		a.menuMu.Unlock()
		a.log.Debug("command menu unchanged, skipping update")
		return nil
	}
	a.menuMu.Unlock()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal commands: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/setMyCommands", a.cfg.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("setMyCommands: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("setMyCommands: status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	var apiResp struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return fmt.Errorf("setMyCommands: decode response: %w", err)
	}
	if !apiResp.OK {
		return fmt.Errorf("setMyCommands: api error: %s", apiResp.Description)
	}

	a.menuMu.Lock()
	a.menuHash = sum
	a.menuMu.Unlock()
	a.log.Info("command menu updated", logx.Int("commands", len(cmds)))
	return nil
}
