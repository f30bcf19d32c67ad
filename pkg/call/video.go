package call

import (
	"context"
	"fmt"

	getstream "github.com/GetStream/getstream-go"
)

// StreamVideo runs call operations through the video server SDK.
type StreamVideo struct {
	addMember func(ctx context.Context, callType, callID, userID string) error
	end       func(ctx context.Context, callType, callID string) error
}

func NewStreamVideo(apiKey, apiSecret string) (*StreamVideo, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("call: api key and secret are required")
	}
	client, err := getstream.NewClient(apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("call: %w", err)
	}
	return &StreamVideo{
		addMember: func(ctx context.Context, callType, callID, userID string) error {
			_, err := client.Video().Call(callType, callID).UpdateCallMembers(ctx, &getstream.UpdateCallMembersRequest{
				UpdateMembers: []getstream.MemberRequest{{UserID: userID}},
			})
			return err
		},
		end: func(ctx context.Context, callType, callID string) error {
			_, err := client.Video().Call(callType, callID).End(ctx, &getstream.EndCallRequest{})
			return err
		},
	}, nil
}

func (v *StreamVideo) AddMember(ctx context.Context, callType, callID, userID string) error {
	return v.addMember(ctx, callType, callID, userID)
}

func (v *StreamVideo) End(ctx context.Context, callType, callID string) error {
	return v.end(ctx, callType, callID)
}
