package browser

import (
	"context"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// interceptor pauses every request of a page to block unwanted resource
// types and to answer proxy authentication challenges. It runs until ctx
// ends.
type interceptor struct {
	block    map[string]bool
	username string
	password string
}

func newInterceptor(types []string, proxy *Proxy) *interceptor {
	ic := &interceptor{block: make(map[string]bool, len(types))}
	for _, t := range types {
		ic.block[strings.ToLower(t)] = true
	}
	if proxy != nil {
		ic.username, ic.password = proxy.Username, proxy.Password
	}
	return ic
}

func (ic *interceptor) needed() bool {
	return len(ic.block) > 0 || ic.username != ""
}

func (ic *interceptor) start(ctx context.Context, page *rod.Page) error {
	err := proto.FetchEnable{HandleAuthRequests: ic.username != ""}.Call(page)
	if err != nil {
		return err
	}
	wait := page.Context(ctx).EachEvent(
		func(e *proto.FetchRequestPaused) {
			if shouldBlock(ic.block, string(e.ResourceType)) {
				_ = proto.FetchFailRequest{
					RequestID:   e.RequestID,
					ErrorReason: proto.NetworkErrorReasonBlockedByClient,
				}.Call(page)
				return
			}
			_ = proto.FetchContinueRequest{RequestID: e.RequestID}.Call(page)
		},
		func(e *proto.FetchAuthRequired) {
			resp := &proto.FetchAuthChallengeResponse{
				Response: proto.FetchAuthChallengeResponseResponseCancelAuth,
			}
			if e.AuthChallenge != nil && e.AuthChallenge.Source == proto.FetchAuthChallengeSourceProxy {
				resp = &proto.FetchAuthChallengeResponse{
					Response: proto.FetchAuthChallengeResponseResponseProvideCredentials,
					Username: ic.username,
					Password: ic.password,
				}
			}
			_ = proto.FetchContinueWithAuth{RequestID: e.RequestID, AuthChallengeResponse: resp}.Call(page)
		},
	)
	go wait()
	return nil
}

func shouldBlock(block map[string]bool, resType string) bool {
	switch lower := strings.ToLower(resType); lower {
	case "image":
		return block["images"]
	case "font":
		return block["fonts"]
	case "media":
		return block["media"]
	case "stylesheet":
		return block["stylesheets"]
	default:
		return block[lower]
	}
}
