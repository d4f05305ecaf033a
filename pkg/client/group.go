package client

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/waweb-dev/waweb/pkg/protocol"
)

// Group request vocabulary.
const (
	iqTag          = "iq"
	groupNamespace = "w:g2"
	groupTag       = "group"
	participantTag = "participant"
)

// Participant is one member of a group.
type Participant struct {
	JID   protocol.JID
	Admin bool
}

// GroupInfo is the metadata the server reports for a group.
type GroupInfo struct {
	JID          protocol.JID
	Subject      string
	Owner        protocol.JID
	Created      time.Time
	Participants []Participant
}

// ParseGroup turns a group id or group JID into a JID on the group server.
func ParseGroup(group string) (protocol.JID, error) {
	group = strings.TrimSpace(group)
	if !strings.ContainsRune(group, '@') {
		group += "@" + protocol.GroupServer
	}
	j, err := protocol.ParseJID(group)
	if err != nil || j.User == "" || !j.IsGroup() {
		return protocol.JID{}, fmt.Errorf("%w: %q is not a group", ErrInvalidPeer, group)
	}
	return j, nil
}

func parseParticipants(peers []string) ([]protocol.JID, error) {
	if len(peers) == 0 {
		return nil, fmt.Errorf("%w: no participants", ErrInvalidPeer)
	}
	out := make([]protocol.JID, 0, len(peers))
	for _, p := range peers {
		j, err := ParsePeer(p)
		if err != nil {
			return nil, err
		}
		if j.IsGroup() {
			return nil, fmt.Errorf("%w: %q is a group, not a participant", ErrInvalidPeer, p)
		}
		out = append(out, j)
	}
	return out, nil
}

func participantNodes(jids []protocol.JID) []*protocol.Node {
	nodes := make([]*protocol.Node, len(jids))
	for i, j := range jids {
		nodes[i] = protocol.NewNode(participantTag).JIDAttr("jid", j)
	}
	return nodes
}

// GroupMetadata fetches the subject, owner and members of group.
func (c *Client) GroupMetadata(ctx context.Context, group string) (*GroupInfo, error) {
	const op = "group metadata"
	j, err := ParseGroup(group)
	if err != nil {
		return nil, &MessageError{Op: op, Err: err}
	}
	resp, err := c.iq(ctx, op, "get", j, protocol.NewNode("query").Attr("request", "interactive"))
	if err != nil {
		return nil, err
	}
	info, err := parseGroupInfo(resp)
	if err != nil {
		return nil, &MessageError{Op: op, Err: err}
	}
	return info, nil
}

// CreateGroup creates a group named subject with the given members and
// returns the group as the server created it.
func (c *Client) CreateGroup(ctx context.Context, subject string, participants []string) (*GroupInfo, error) {
	const op = "create group"
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, &MessageError{Op: op, Err: fmt.Errorf("%w: empty group subject", ErrInvalidPeer)}
	}
	jids, err := parseParticipants(participants)
	if err != nil {
		return nil, &MessageError{Op: op, Err: err}
	}
	create := protocol.NewNode("create").
		Attr("subject", subject).
		Attr("key", NewMessageID()).
		Children(participantNodes(jids)...)
	resp, err := c.iq(ctx, op, "set", protocol.NewJID("", protocol.GroupServer), create)
	if err != nil {
		return nil, err
	}
	info, err := parseGroupInfo(resp)
	if err != nil {
		return nil, &MessageError{Op: op, Err: err}
	}
	return info, nil
}

// AddParticipants adds members to group.
func (c *Client) AddParticipants(ctx context.Context, group string, participants []string) error {
	return c.changeParticipants(ctx, "add participants", "add", group, participants)
}

// RemoveParticipants removes members from group.
func (c *Client) RemoveParticipants(ctx context.Context, group string, participants []string) error {
	return c.changeParticipants(ctx, "remove participants", "remove", group, participants)
}

func (c *Client) changeParticipants(ctx context.Context, op, action, group string, participants []string) error {
	j, err := ParseGroup(group)
	if err != nil {
		return &MessageError{Op: op, Err: err}
	}
	jids, err := parseParticipants(participants)
	if err != nil {
		return &MessageError{Op: op, Err: err}
	}
	resp, err := c.iq(ctx, op, "set", j, protocol.NewNode(action).Children(participantNodes(jids)...))
	if err != nil {
		return err
	}
	return participantFailures(op, resp)
}

// LeaveGroup removes the logged-in user from group.
func (c *Client) LeaveGroup(ctx context.Context, group string) error {
	const op = "leave group"
	j, err := ParseGroup(group)
	if err != nil {
		return &MessageError{Op: op, Err: err}
	}
	leave := protocol.NewNode("leave").Children(protocol.NewNode(groupTag).JIDAttr("id", j))
	_, err = c.iq(ctx, op, "set", protocol.NewJID("", protocol.GroupServer), leave)
	return err
}

// iq sends an info/query node addressed to to and returns the reply node,
// which is nil when the server answered with a bare JSON status.
func (c *Client) iq(ctx context.Context, op, kind string, to protocol.JID, child *protocol.Node) (*protocol.Node, error) {
	if !c.authenticated() {
		return nil, &MessageError{Op: op, Err: ErrNotAuthenticated}
	}
	tag := c.tags.Next()
	n := protocol.NewNode(iqTag).
		Attr("id", tag).
		Attr("type", kind).
		Attr("xmlns", groupNamespace).
		JIDAttr("to", to).
		Children(child)

	binary := c.cfg.BinaryNodes
	payload, err := protocol.EncodeNodePayload(n, binary)
	if err != nil {
		return nil, &MessageError{Op: op, Err: err}
	}
	r, err := c.request(ctx, op, tag, payload, binary)
	if err != nil {
		return nil, &MessageError{Op: op, Err: err}
	}
	if err := checkAck(r); err != nil {
		return nil, &MessageError{Op: op, Err: err}
	}
	if len(r.payload) == 0 {
		return nil, nil
	}
	if _, ok := protocol.PeekStatus(r.payload); ok {
		return nil, nil
	}
	resp, err := protocol.DecodeNodePayload(r.payload, r.binary)
	if err != nil {
		return nil, &MessageError{Op: op, Err: err}
	}
	return resp, nil
}

// parseGroupInfo reads the group child of an iq result.
func parseGroupInfo(resp *protocol.Node) (*GroupInfo, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: empty group reply", ErrMessageRejected)
	}
	g := resp
	if resp.Tag != groupTag {
		g = resp.ChildByTag(groupTag)
	}
	if g == nil {
		return nil, fmt.Errorf("%w: reply has no group", ErrMessageRejected)
	}

	id := attrJID(g, "id")
	if id.Server == "" {
		id.Server = protocol.GroupServer
	}
	info := &GroupInfo{
		JID:     id,
		Subject: g.AttrString("subject"),
		Owner:   attrJID(g, "creator"),
	}
	if secs, err := strconv.ParseInt(g.AttrString("creation"), 10, 64); err == nil {
		info.Created = time.Unix(secs, 0)
	}
	if g.Content.Kind == protocol.ContentChildren {
		for _, p := range g.Content.Children {
			if p.Tag != participantTag {
				continue
			}
			j := attrJID(p, "jid")
			if j.IsEmpty() {
				continue
			}
			kind := p.AttrString("type")
			info.Participants = append(info.Participants, Participant{
				JID:   j,
				Admin: kind == "admin" || kind == "superadmin",
			})
		}
	}
	return info, nil
}

// participantFailures turns per-member error codes in a participant
// change reply into one error.
func participantFailures(op string, resp *protocol.Node) error {
	if resp == nil || resp.Content.Kind != protocol.ContentChildren {
		return nil
	}
	var failed []string
	for _, action := range resp.Content.Children {
		if action.Content.Kind != protocol.ContentChildren {
			continue
		}
		for _, p := range action.Content.Children {
			if p.Tag != participantTag {
				continue
			}
			if code := p.AttrString("error"); code != "" {
				failed = append(failed, attrJID(p, "jid").String()+" ("+code+")")
			}
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &MessageError{Op: op, Err: fmt.Errorf("%w: %s", ErrMessageRejected, strings.Join(failed, ", "))}
}

// attrJID reads key as a JID whether it was sent as a JID pair or as text.
func attrJID(n *protocol.Node, key string) protocol.JID {
	v, ok := n.GetAttr(key)
	if !ok {
		return protocol.JID{}
	}
	if v.Kind == protocol.AttrJID {
		return v.JID
	}
	s := v.String()
	if s == "" {
		return protocol.JID{}
	}
	if !strings.ContainsRune(s, '@') {
		return protocol.NewJID(s, "")
	}
	j, _ := protocol.ParseJID(s)
	return j
}
