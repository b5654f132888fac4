// Package discord provides a [capture.Source] backed by a Discord voice
// channel via the bwmarrin/discordgo library.
//
// The source joins one guild voice channel as a listen-only bot, decodes
// the per-speaker Opus packets (one decoder per SSRC, so libopus
// prediction state stays per speaker) straight into the pipeline PCM
// format and merges everything into a single labeled stream, "far" by
// default. Discord delivers room audio; per-speaker attribution is not
// preserved.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/earshot-audio/earshot/pkg/audio"
	"github.com/earshot-audio/earshot/pkg/audio/opus"
	"github.com/earshot-audio/earshot/pkg/capture"
)

// Compile-time interface assertion.
var _ capture.Source = (*Source)(nil)

// rtpClockRate is the clock the RTP timestamps in Discord voice packets
// tick at, independent of the decode format.
const rtpClockRate = 48000

// defaultBuffer is the frame channel capacity when Config.Buffer is zero.
const defaultBuffer = 64

// Config holds the Discord connection settings.
type Config struct {
	// Token is the bot token, without the "Bot " prefix.
	Token string

	// GuildID is the server hosting the voice channel.
	GuildID string

	// ChannelID is the voice channel to join.
	ChannelID string

	// Label names the emitted stream. Default: "far".
	Label string

	// Buffer is the frame channel capacity. Default: 64.
	Buffer int
}

// Source captures a Discord voice channel as one labeled stream.
type Source struct {
	cfg    Config
	target audio.Format

	session *discordgo.Session
	vc      *discordgo.VoiceConnection

	out      chan audio.Frame
	done     chan struct{}
	loopDone chan struct{}

	closeOnce sync.Once
	closeErr  error

	// disconnectVC tears down the voice connection during Close. Tests
	// swap it out; everywhere else it is vc.Disconnect.
	disconnectVC func() error
}

// New connects to Discord, joins the configured voice channel muted (the
// bot only listens) and starts decoding into target-format PCM.
func New(_ context.Context, cfg Config, target audio.Format) (*Source, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord capture: token must not be empty")
	}
	if cfg.GuildID == "" || cfg.ChannelID == "" {
		return nil, errors.New("discord capture: guild and channel IDs must not be empty")
	}
	if cfg.Label == "" {
		cfg.Label = "far"
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	if target.SampleRate <= 0 {
		target.SampleRate = 16000
	}
	if target.Channels <= 0 {
		target.Channels = 1
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord capture: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildVoiceStates | discordgo.IntentsGuilds

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord capture: open session: %w", err)
	}

	vc, err := session.ChannelVoiceJoin(cfg.GuildID, cfg.ChannelID, true, false)
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("discord capture: join voice channel %q: %w", cfg.ChannelID, err)
	}

	s := newSource(cfg, target, session, vc)
	slog.Info("discord capture: listening",
		"guild", cfg.GuildID, "channel", cfg.ChannelID, "label", cfg.Label)
	return s, nil
}

// newSource wires up a Source for an already-joined voice connection and
// starts the receive loop. Split from New so tests can inject a fake vc.
func newSource(cfg Config, target audio.Format, session *discordgo.Session, vc *discordgo.VoiceConnection) *Source {
	s := &Source{
		cfg:          cfg,
		target:       target,
		session:      session,
		vc:           vc,
		out:          make(chan audio.Frame, cfg.Buffer),
		done:         make(chan struct{}),
		loopDone:     make(chan struct{}),
		disconnectVC: vc.Disconnect,
	}
	go s.recvLoop()
	return s
}

// Streams returns the single labeled stream.
func (s *Source) Streams() map[string]<-chan audio.Frame {
	return map[string]<-chan audio.Frame{s.cfg.Label: s.out}
}

// Close leaves the voice channel, closes the Discord session and waits
// for the receive loop to close the stream channel. Safe to call more
// than once; subsequent calls return the first result.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)

		var errs []error
		if s.disconnectVC != nil {
			if err := s.disconnectVC(); err != nil {
				errs = append(errs, fmt.Errorf("disconnect voice: %w", err))
			}
		}
		if s.session != nil {
			if err := s.session.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close session: %w", err))
			}
		}
		<-s.loopDone

		if len(errs) > 0 {
			s.closeErr = fmt.Errorf("discord capture: %w", errors.Join(errs...))
		}
	})
	return s.closeErr
}

// recvLoop reads Opus packets from the voice connection, decodes them per
// SSRC and merges the PCM into the output stream. It owns closing out.
func (s *Source) recvLoop() {
	defer close(s.loopDone)
	defer close(s.out)

	decoders := make(map[uint32]*opus.Decoder)

	for {
		select {
		case <-s.done:
			return
		case pkt, ok := <-s.vc.OpusRecv:
			if !ok {
				return
			}
			if pkt == nil {
				continue
			}

			dec := decoders[pkt.SSRC]
			if dec == nil {
				var err error
				dec, err = opus.NewDecoder(s.target.SampleRate, s.target.Channels)
				if err != nil {
					slog.Error("discord capture: create decoder",
						"ssrc", pkt.SSRC, "error", err)
					continue
				}
				decoders[pkt.SSRC] = dec
				slog.Debug("discord capture: new speaker", "ssrc", pkt.SSRC)
			}

			pcm, err := dec.Decode(pkt.Opus)
			if err != nil {
				slog.Warn("discord capture: opus decode",
					"ssrc", pkt.SSRC, "error", err)
				continue
			}

			frame := audio.Frame{
				Data:       pcm,
				SampleRate: s.target.SampleRate,
				Channels:   s.target.Channels,
				Timestamp:  time.Duration(pkt.Timestamp) * time.Second / rtpClockRate,
			}
			select {
			case s.out <- frame:
			default:
				// Consumer is behind; drop rather than stall the voice
				// receive loop.
			}
		}
	}
}
