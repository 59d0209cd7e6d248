package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/layer-3/credgate"
	"github.com/layer-3/credgate/access"
	"github.com/layer-3/credgate/adapters/ledger"
	"github.com/layer-3/credgate/adapters/pinning"
	"github.com/layer-3/credgate/adapters/store"
	"github.com/layer-3/credgate/adapters/wallet"
	"github.com/layer-3/credgate/core"
	"github.com/layer-3/credgate/internal/config"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

// session is everything a command needs to talk to the backend as the configured wallet
type session struct {
	signer   *wallet.KeySigner
	client   *credgate.Client
	workflow *access.Workflow
}

func openSession(c *cli.Context) (*session, error) {
	signer, err := wallet.NewKeySignerFromHex(c.String("key"))
	if err != nil {
		return nil, fmt.Errorf("--key: %w", err)
	}

	path := c.String("session-file")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	cache := credgate.NewSessionCache(store.NewFileStore(path))

	client := credgate.NewClient(c.String("backend"), signer.Address(), signer, cache)
	return &session{signer: signer, client: client, workflow: access.NewWorkflow(client)}, nil
}

func printResult(c *cli.Context, v interface{}) error {
	switch c.String("output") {
	case "json":
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		// Round-trip through JSON so the wire field names are kept
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic interface{}
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(c.App.Writer)
		defer enc.Close()
		return enc.Encode(generic)
	default:
		return fmt.Errorf("unknown output format %q", c.String("output"))
	}
}

func parseRole(c *cli.Context) (core.Role, error) {
	return core.ParseRole(c.String("role"))
}

var roleFlag = &cli.StringFlag{
	Name:  "role",
	Value: "received",
	Usage: "sent (as recipient) or received (as student)",
}

func commands(cfg *config.Client) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "nonce",
			Usage: "fetch a login nonce for the wallet",
			Action: func(c *cli.Context) error {
				s, err := openSession(c)
				if err != nil {
					return err
				}
				auth := credgate.NewNonceAuthenticator(c.String("backend"), http.DefaultClient, s.signer)
				nonce, err := auth.FetchNonce(c.Context, s.signer.Address())
				if err != nil {
					return err
				}
				return printResult(c, map[string]string{"wallet": s.signer.Address(), "nonce": nonce})
			},
		},
		{
			Name:  "raise",
			Usage: "ask a student to disclose credentials",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "student", Required: true, Usage: "student wallet address"},
				&cli.StringFlag{Name: "description", Required: true, Usage: "purpose of the request"},
				&cli.IntFlag{Name: "expiry", Value: core.DefaultExpiryMinutes, Usage: "minutes until the request expires"},
			},
			Action: func(c *cli.Context) error {
				s, err := openSession(c)
				if err != nil {
					return err
				}
				request, err := s.workflow.Raise(c.Context, c.String("student"), c.String("description"), c.Int("expiry"))
				if err != nil {
					return err
				}
				return printResult(c, request)
			},
		},
		{
			Name:  "list",
			Usage: "list requests",
			Flags: []cli.Flag{roleFlag},
			Action: func(c *cli.Context) error {
				role, err := parseRole(c)
				if err != nil {
					return err
				}
				s, err := openSession(c)
				if err != nil {
					return err
				}
				listings, err := s.workflow.List(c.Context, role)
				if err != nil {
					return err
				}
				return printResult(c, listings)
			},
		},
		{
			Name:  "status",
			Usage: "show a request with its outcome",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "id", Required: true, Usage: "request id"},
				roleFlag,
			},
			Action: func(c *cli.Context) error {
				role, err := parseRole(c)
				if err != nil {
					return err
				}
				s, err := openSession(c)
				if err != nil {
					return err
				}
				detail, err := s.workflow.GetStatus(c.Context, c.String("id"), role)
				if err != nil {
					return err
				}
				return printResult(c, detail)
			},
		},
		{
			Name:  "approve",
			Usage: "disclose credentials to the requester",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "id", Required: true, Usage: "request id"},
				&cli.StringSliceFlag{Name: "credential", Required: true, Usage: "credential token id, repeatable"},
				&cli.BoolFlag{Name: "check-ledger", Usage: "refuse credentials that are not issued to the wallet or are revoked"},
			},
			Action: func(c *cli.Context) error {
				s, err := openSession(c)
				if err != nil {
					return err
				}
				selection := access.NewSelection(c.StringSlice("credential")...)
				if c.Bool("check-ledger") {
					index, err := openIndex(cfg)
					if err != nil {
						return err
					}
					creds, err := index.ByStudent(c.Context, s.signer.Address())
					if err != nil {
						return err
					}
					if err := access.CheckSelectable(selection, creds); err != nil {
						return err
					}
				}
				if err := s.workflow.SubmitDecision(c.Context, c.String("id"), selection.Approve()); err != nil {
					return err
				}
				return printResult(c, map[string]interface{}{"request_id": c.String("id"), "approved": selection.IDs()})
			},
		},
		{
			Name:  "deny",
			Usage: "refuse a request",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "id", Required: true, Usage: "request id"},
				&cli.StringFlag{Name: "reason", Required: true, Usage: "why the request is refused"},
			},
			Action: func(c *cli.Context) error {
				s, err := openSession(c)
				if err != nil {
					return err
				}
				if err := s.workflow.SubmitDecision(c.Context, c.String("id"), core.Deny(c.String("reason"))); err != nil {
					return err
				}
				return printResult(c, map[string]string{"request_id": c.String("id"), "denied": c.String("reason")})
			},
		},
		{
			Name:  "register",
			Usage: "register a pinned transcript with the backend",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "transcript-id", Required: true, Usage: "credential token id"},
				&cli.StringFlag{Name: "metadata-uri", Required: true, Usage: "IPFS URI of the metadata document"},
				&cli.StringFlag{Name: "media-uri", Required: true, Usage: "IPFS URI of the file"},
				&cli.StringFlag{Name: "owner", Usage: "student wallet, defaults to the configured wallet"},
			},
			Action: func(c *cli.Context) error {
				s, err := openSession(c)
				if err != nil {
					return err
				}
				owner := c.String("owner")
				if owner == "" {
					owner = s.signer.Address()
				}
				transcript := core.Transcript{
					TranscriptID:     c.String("transcript-id"),
					IPFSURIMetadata:  c.String("metadata-uri"),
					IPFSURIMediaHash: c.String("media-uri"),
					OwnerWallet:      owner,
				}
				if err := s.workflow.RegisterTranscript(c.Context, transcript); err != nil {
					return err
				}
				return printResult(c, transcript)
			},
		},
		{
			Name:  "transcripts",
			Usage: "list transcripts the wallet owns or was granted",
			Action: func(c *cli.Context) error {
				s, err := openSession(c)
				if err != nil {
					return err
				}
				ids, err := s.workflow.Transcripts(c.Context)
				if err != nil {
					return err
				}
				return printResult(c, ids)
			},
		},
		{
			Name:  "access",
			Usage: "check whether the wallet may open a pinned file",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "uri", Required: true, Usage: "IPFS URI"},
			},
			Action: func(c *cli.Context) error {
				s, err := openSession(c)
				if err != nil {
					return err
				}
				ok, err := s.workflow.CheckAccess(c.Context, c.String("uri"))
				if err != nil {
					return err
				}
				return printResult(c, map[string]interface{}{"uri": c.String("uri"), "granted": ok})
			},
		},
		{
			Name:  "credentials",
			Usage: "list credentials from the ledger",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "student", Usage: "student wallet, defaults to the configured wallet"},
				&cli.StringFlag{Name: "institution", Usage: "list what an institution issued instead"},
				&cli.BoolFlag{Name: "selectable", Usage: "only credentials that can still be disclosed"},
			},
			Action: func(c *cli.Context) error {
				index, err := openIndex(cfg)
				if err != nil {
					return err
				}

				var creds []core.Credential
				if institution := c.String("institution"); institution != "" {
					creds, err = index.ByInstitution(c.Context, institution)
				} else {
					student := c.String("student")
					if student == "" {
						signer, err := wallet.NewKeySignerFromHex(c.String("key"))
						if err != nil {
							return fmt.Errorf("--student or --key required: %w", err)
						}
						student = signer.Address()
					}
					creds, err = index.ByStudent(c.Context, student)
				}
				if err != nil {
					return err
				}
				if c.Bool("selectable") {
					creds = access.Selectable(creds)
				}
				return printResult(c, creds)
			},
		},
		{
			Name:  "pin",
			Usage: "pin a credential file and its signed metadata to IPFS",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "file", Required: true, Usage: "path of the credential file"},
				&cli.StringFlag{Name: "title", Required: true, Usage: "credential title"},
			},
			Action: func(c *cli.Context) error {
				signer, err := wallet.NewKeySignerFromHex(c.String("key"))
				if err != nil {
					return fmt.Errorf("--key: %w", err)
				}
				f, err := os.Open(c.String("file"))
				if err != nil {
					return err
				}
				defer f.Close()

				ipfs := pinning.NewIPFSClient(cfg.IPFSAPI, cfg.IPFSGateway)
				file, err := ipfs.AddFile(c.Context, filepath.Base(f.Name()), f)
				if err != nil {
					return err
				}
				fileHash, err := ipfs.FetchAndHash(c.Context, file.URL)
				if err != nil {
					return err
				}
				metadata, upload, err := ipfs.IssueMetadata(c.Context, signer, c.String("title"), file.URL, fileHash)
				if err != nil {
					return err
				}
				return printResult(c, map[string]interface{}{"file": file, "metadata": upload, "document": metadata})
			},
		},
		{
			Name:  "logout",
			Usage: "end the wallet's session",
			Action: func(c *cli.Context) error {
				s, err := openSession(c)
				if err != nil {
					return err
				}
				return s.client.Logout(c.Context)
			},
		},
	}
}

func openIndex(cfg *config.Client) (*ledger.CredentialIndex, error) {
	if !common.IsHexAddress(cfg.Contract) {
		return nil, fmt.Errorf("CREDGATE_CONTRACT must be set to the credential contract address")
	}
	rpc, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.RPCURL, err)
	}
	index, err := ledger.NewCredentialIndex(rpc, common.HexToAddress(cfg.Contract))
	if err != nil {
		return nil, err
	}
	return index.WithFromBlock(cfg.FromBlock), nil
}
