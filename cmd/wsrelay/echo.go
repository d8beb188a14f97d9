package main

import "github.com/corrinhale/wsrelay/internal/gateway"

// echoBehavior is the gateway's smoke-test service: it sends back
// whatever it receives, unmodified. serveCmd registers one at /echo so a
// freshly started gateway has at least one reachable service.
type echoBehavior struct{}

func newEchoBehavior() gateway.Behavior { return &echoBehavior{} }

func (echoBehavior) OnOpen(s *gateway.Session) {}

func (echoBehavior) OnMessage(s *gateway.Session, msg gateway.MessageEventArgs) {
	_ = s.Send(msg.Payload, msg.Opcode == gateway.OpcodeText)
}

func (echoBehavior) OnError(s *gateway.Session, err gateway.ErrorEventArgs) {}

func (echoBehavior) OnClose(s *gateway.Session, ev gateway.CloseEventArgs) {}
