package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[AuthorizeMessage]         = (*AuthorizeCommand)(nil)
	_ gocmd.Commander[EnsureAccessTokenMessage] = (*EnsureAccessTokenCommand)(nil)
	_ gocmd.Commander[RevokeMessage]            = (*RevokeCommand)(nil)
)
