package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/lanikai/icecore/internal/config"
	"github.com/lanikai/icecore/internal/ice"
	"github.com/lanikai/icecore/internal/logging"
	"github.com/lanikai/icecore/internal/signaling"
)

var log = logging.DefaultLogger.WithTag("main")

// sdpOfferPayload and sdpAnswerPayload carry the ICE credentials this
// controller negotiates over the signaling transport; SDP media
// negotiation itself is a collaborator outside this controller's scope.
type sdpOfferPayload struct {
	Ufrag    string `json:"ufrag"`
	Password string `json:"password"`
}

type sdpAnswerPayload struct {
	Ufrag      string   `json:"ufrag"`
	Password   string   `json:"password"`
	Candidates []string `json:"candidates"`
}

func main() {
	flag.Parse()

	if flagHelp {
		help()
		os.Exit(0)
	}
	if flagVersion {
		version()
		os.Exit(0)
	}
	if flagLogLevel != "" {
		level, err := logging.ParseLevel(flagLogLevel)
		if err != nil {
			log.Error("invalid --log-level %q: %s", flagLogLevel, err)
			os.Exit(1)
		}
		logging.DefaultLogger.Level = level
	}

	cfg, err := config.FromEnvironment()
	if err != nil {
		log.Error("loading configuration: %s", err)
		os.Exit(1)
	}

	ice.SetIPv6Enabled(flagEnableIPv6)

	ctrl, err := ice.NewController(ice.Config{
		Region:   cfg.Region,
		MaxPeers: cfg.MaxConcurrentViewers,
	})
	if err != nil {
		log.Error("constructing controller: %s", err)
		os.Exit(1)
	}

	client := signaling.NewWebSocketClient()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := ctrl.Init(ctx, client); err != nil {
		log.Error("initializing controller: %s", err)
		os.Exit(1)
	}

	client.SetHandler(newEnvelopeHandler(ctx, ctrl, client))

	go func() {
		if err := ctrl.Run(ctx); err != nil {
			log.Error("controller run loop exited: %s", err)
		}
	}()
	defer func() {
		ctrl.Stop()
		if err := ctrl.Deinit(); err != nil {
			log.Warn("tearing down peer sessions: %s", err)
		}
	}()

	log.Info("listening for signaling connections on %s (channel %q, region %q)", flagListenAddress, cfg.ChannelName, cfg.Region)
	if err := client.Listen(ctx, flagListenAddress); err != nil {
		log.Error("signaling listener exited: %s", err)
		os.Exit(1)
	}
}

// newEnvelopeHandler dispatches inbound signaling envelopes to the
// controller: SdpOffer starts (or re-keys) a peer session and answers with
// our own credentials, IceCandidate trickles a remote candidate, and
// GoAway tears a peer session down.
func newEnvelopeHandler(ctx context.Context, ctrl *ice.Controller, client signaling.Client) signaling.Handler {
	return func(env signaling.Envelope) {
		switch env.Kind {
		case signaling.KindSdpOffer:
			var offer sdpOfferPayload
			if err := json.Unmarshal(env.Payload, &offer); err != nil {
				log.Warn("%s: malformed SdpOffer payload: %s", env.SenderID, err)
				return
			}

			localLines, err := ctrl.SetRemoteDescription(env.SenderID, offer.Ufrag, offer.Password)
			if err != nil {
				log.Warn("%s: SetRemoteDescription failed: %s", env.SenderID, err)
				return
			}

			ufrag, password := ctrl.LocalCredentials()
			answer := sdpAnswerPayload{Ufrag: ufrag, Password: password, Candidates: localLines}
			if err := client.Send(ctx, string(signaling.KindSdpAnswer), env.SenderID, answer); err != nil {
				log.Warn("%s: sending SdpAnswer failed: %s", env.SenderID, err)
			}

		case signaling.KindIceCandidate:
			var desc string
			if err := json.Unmarshal(env.Payload, &desc); err != nil {
				log.Warn("%s: malformed IceCandidate payload: %s", env.SenderID, err)
				return
			}
			if err := ctrl.AddRemoteCandidate(env.SenderID, desc); err != nil {
				log.Warn("%s: AddRemoteCandidate failed: %s", env.SenderID, err)
			}

		case signaling.KindGoAway:
			if err := ctrl.RemovePeer(env.SenderID); err != nil {
				log.Warn("%s: RemovePeer failed: %s", env.SenderID, err)
			}

		default:
			log.Debug("%s: ignoring envelope kind %q", env.SenderID, env.Kind)
		}
	}
}
