package client

import (
	"context"
	"fmt"

	"github.com/and161185/cipherchat/internal/model"
	"github.com/gofrs/uuid/v5"
)

// SearchUser looks another user up by friend code.
func (c *Client) SearchUser(ctx context.Context, code string) (model.User, error) {
	u, err := c.b.SearchUser(ctx, code)
	if err != nil {
		return model.User{}, fmt.Errorf("search user: %w", err)
	}
	return u, nil
}

// AddFriend finds the user by friend code and sends a request.
func (c *Client) AddFriend(ctx context.Context, code string) (model.Friend, error) {
	u, err := c.SearchUser(ctx, code)
	if err != nil {
		return model.Friend{}, err
	}
	f, err := c.b.RequestFriend(ctx, u.ID)
	if err != nil {
		return model.Friend{}, fmt.Errorf("request friend: %w", err)
	}
	return f, nil
}

// AcceptFriend accepts a pending request addressed to us.
func (c *Client) AcceptFriend(ctx context.Context, requestID int64) (model.Friend, error) {
	f, err := c.b.AcceptFriend(ctx, requestID)
	if err != nil {
		return model.Friend{}, fmt.Errorf("accept friend: %w", err)
	}
	return f, nil
}

// RemoveFriend deletes a friendship or declines/cancels a request.
func (c *Client) RemoveFriend(ctx context.Context, requestID int64) error {
	if err := c.b.RemoveFriend(ctx, requestID); err != nil {
		return fmt.Errorf("remove friend: %w", err)
	}
	return nil
}

// Friends returns friends and pending requests.
func (c *Client) Friends(ctx context.Context) (model.FriendList, error) {
	l, err := c.b.ListFriends(ctx)
	if err != nil {
		return model.FriendList{}, fmt.Errorf("list friends: %w", err)
	}
	return l, nil
}

// IsOnline reports whether a friend is online as last announced by the server.
func (c *Client) IsOnline(userID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online[userID]
}

// setOnline replaces the online set (friends:online) or updates one entry
// (user:status).
func (c *Client) setOnline(ids []uuid.UUID, reset bool, online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if reset {
		c.online = make(map[uuid.UUID]bool, len(ids))
	}
	for _, id := range ids {
		if online {
			c.online[id] = true
		} else {
			delete(c.online, id)
		}
	}
}
