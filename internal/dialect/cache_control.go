package dialect

// ApplyAutoCacheControl marks up to three positions in req as Anthropic
// prompt-cache breakpoints, mirroring how the upstream client libraries
// place ephemeral cache_control markers to keep the "tools + system
// prompt + everything but the newest user turn" portion of a conversation
// cacheable:
//
//  1. the last tool definition (if any tools are declared)
//  2. the last block of the system prompt (if any)
//  3. the last content block of the SECOND-TO-LAST user message (if at
//     least two user messages exist) — the newest user turn is left
//     unmarked since it will never be replayed from cache
//
// A position that already carries a cache marker is left untouched.
func ApplyAutoCacheControl(req *Request) {
	if req == nil {
		return
	}
	markLastToolDef(req)
	markLastSystemBlock(req)
	markSecondToLastUserMessage(req)
}

func markLastToolDef(req *Request) {
	if len(req.Tools) == 0 {
		return
	}
	last := &req.Tools[len(req.Tools)-1]
	if last.CacheControl {
		return
	}
	last.CacheControl = true
}

func markLastSystemBlock(req *Request) {
	if len(req.System) == 0 {
		return
	}
	b := &req.System[len(req.System)-1]
	if b.CacheControl {
		return
	}
	b.CacheControl = true
}

func markSecondToLastUserMessage(req *Request) {
	userIdxs := make([]int, 0, len(req.Messages))
	for i, m := range req.Messages {
		if m.Role == RoleUser {
			userIdxs = append(userIdxs, i)
		}
	}
	if len(userIdxs) < 2 {
		return
	}
	target := &req.Messages[userIdxs[len(userIdxs)-2]]
	if len(target.Content) == 0 {
		return
	}
	last := &target.Content[len(target.Content)-1]
	if last.CacheControl {
		return
	}
	last.CacheControl = true
}
