package source

import (
	"context"
	"fmt"
	"net/url"

	"github.com/nhle/hrnotify/internal/model"
)

// ticketPerson is a populated user reference on a ticket.
type ticketPerson struct {
	ID        string `json:"_id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (p *ticketPerson) name() string {
	if p == nil {
		return ""
	}
	return model.ChatUser{FirstName: p.FirstName, LastName: p.LastName}.FullName()
}

type ticketAttachment struct {
	URL  string `json:"url"`
	Name string `json:"originalName"`
}

// Ticket is a support ticket as listed by the admin endpoint.
type Ticket struct {
	ID            string            `json:"_id"`
	Employee      *ticketPerson     `json:"employee"`
	AssignedTo    *ticketPerson     `json:"assignedTo"`
	RaisedByRole  string            `json:"raisedByRole"`
	Subject       string            `json:"subject"`
	Category      string            `json:"category"`
	Priority      string            `json:"priority"`
	Description   string            `json:"description"`
	Status        string            `json:"status"`
	IsReadByAdmin bool              `json:"isReadByAdmin"`
	Attachment    *ticketAttachment `json:"attachment"`
	CreatedAt     string            `json:"createdAt"`
	UpdatedAt     string            `json:"updatedAt"`
}

// Item converts the ticket into a feed item.
func (t Ticket) Item() model.NotificationItem {
	it := model.NotificationItem{
		ID:         t.ID,
		Channel:    model.ChannelTicket,
		Timestamp:  model.ParseTime(t.CreatedAt),
		TargetRole: model.TargetAdmin,
		ServerRead: t.IsReadByAdmin,
		Payload: model.Payload{
			Title:    t.Subject,
			Subtitle: t.Category,
			Sender:   t.Employee.name(),
			Status:   t.Status,
			Priority: t.Priority,
		},
	}
	if t.Attachment != nil {
		it.Payload.AttachmentURL = t.Attachment.URL
		it.Payload.AttachmentName = t.Attachment.Name
	}
	if t.RaisedByRole != "" {
		it.Payload.Extra = map[string]string{"raised_by_role": t.RaisedByRole}
	}
	return it
}

type ticketList struct {
	Success     bool     `json:"success"`
	Tickets     []Ticket `json:"tickets"`
	UnreadCount int      `json:"unreadCount"`
	Message     string   `json:"message"`
}

// TicketSource lists support tickets and acknowledges reads.
type TicketSource struct {
	client *Client
}

// NewTicketSource returns a ticket source using client.
func NewTicketSource(client *Client) *TicketSource {
	return &TicketSource{client: client}
}

// Channel returns the ticket channel.
func (s *TicketSource) Channel() model.ChannelType {
	return model.ChannelTicket
}

// Fetch lists the tickets visible to the admin.
func (s *TicketSource) Fetch(ctx context.Context) ([]model.NotificationItem, error) {
	var resp ticketList
	if err := s.client.Get(ctx, "/admin/tickets", nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching tickets: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("fetching tickets: %s", resp.Message)
	}

	items := make([]model.NotificationItem, 0, len(resp.Tickets))
	for _, t := range resp.Tickets {
		if t.ID == "" {
			continue
		}
		items = append(items, t.Item())
	}
	return items, nil
}

// Acknowledge marks the ticket read for admins on the server.
func (s *TicketSource) Acknowledge(ctx context.Context, id string) error {
	path := "/admin/support-tickets/" + url.PathEscape(id) + "/mark-read"
	if err := s.client.Patch(ctx, path, nil, nil); err != nil {
		return fmt.Errorf("marking ticket %s read: %w", id, err)
	}
	return nil
}
