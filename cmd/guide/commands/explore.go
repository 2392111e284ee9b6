package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haivivi/guide/pkg/chat"
	"github.com/haivivi/guide/pkg/cli"
	"github.com/haivivi/guide/pkg/exchange"
)

var (
	exploreSkills     string
	exploreInterests  string
	exploreExperience string
	exploreSearch     bool
)

// exploreRequest is the request file format of the explore command.
type exploreRequest struct {
	Skills     string `json:"skills,omitempty" yaml:"skills,omitempty"`
	Interests  string `json:"interests,omitempty" yaml:"interests,omitempty"`
	Experience string `json:"experience,omitempty" yaml:"experience,omitempty"`
	WebSearch  bool   `json:"web_search,omitempty" yaml:"web_search,omitempty"`
}

func (r *exploreRequest) profile() chat.CareerProfile {
	return chat.CareerProfile{Skills: r.Skills, Interests: r.Interests, Experience: r.Experience}
}

var exploreCmd = &cobra.Command{
	Use:   "explore",
	Short: "Get career path suggestions",
	Long: `Describe yourself and get suggested career paths.

At least one of --skills, --interests and --experience is required. The
reply is printed like the reply of the ask command.

Request file format (YAML or JSON):
  skills: Python, SQL, data visualization
  interests: healthcare, mentoring
  experience: Three years as a data analyst at a hospital.
  web_search: true

Examples:
  guide explore --skills "Go, Kubernetes" --interests "developer tools"
  guide explore -f profile.yaml --json --jq .reply.text`,
	Args: cobra.NoArgs,
	RunE: runExplore,
}

func init() {
	exploreCmd.Flags().StringVar(&exploreSkills, "skills", "", "your skills")
	exploreCmd.Flags().StringVar(&exploreInterests, "interests", "", "your interests")
	exploreCmd.Flags().StringVar(&exploreExperience, "experience", "", "your professional experience")
	exploreCmd.Flags().BoolVar(&exploreSearch, "search", false, "ground the reply with web search")
	rootCmd.AddCommand(exploreCmd)
}

func loadExploreRequest() (*exploreRequest, error) {
	req := &exploreRequest{}
	if inputFile != "" {
		if err := cli.LoadRequest(inputFile, req); err != nil {
			return nil, err
		}
	}
	if exploreSkills != "" {
		req.Skills = exploreSkills
	}
	if exploreInterests != "" {
		req.Interests = exploreInterests
	}
	if exploreExperience != "" {
		req.Experience = exploreExperience
	}
	if exploreSearch {
		req.WebSearch = true
	}
	if _, err := chat.CareerPathPrompt(req.profile()); err != nil {
		return nil, errors.New("at least one of --skills, --interests or --experience is required")
	}
	return req, nil
}

func runExplore(cmd *cobra.Command, args []string) error {
	req, err := loadExploreRequest()
	if err != nil {
		return err
	}
	question, _ := chat.CareerPathPrompt(req.profile())

	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.bootstrap(ctx); err != nil {
		return errors.New(keyHint(err))
	}

	printVerbose("Exploring careers (web search: %v)", req.WebSearch)
	return deliver(cmd, s, question, func(ctx context.Context) error {
		return s.coord.ExploreCareers(ctx, req.profile(), exchange.SendOptions{WebSearch: req.WebSearch})
	})
}

// parseCareerProfile reads the /explore argument of the chat command:
// "skills: ... | interests: ... | experience: ...". Fields may be given
// in any order or left out.
func parseCareerProfile(s string) (chat.CareerProfile, error) {
	var p chat.CareerProfile
	for part := range strings.SplitSeq(s, "|") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, val, ok := strings.Cut(part, ":")
		if !ok {
			return p, fmt.Errorf("expected field: value, got %q", part)
		}
		val = strings.TrimSpace(val)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "skills":
			p.Skills = val
		case "interests":
			p.Interests = val
		case "experience":
			p.Experience = val
		default:
			return p, fmt.Errorf("unknown field %q, use skills, interests or experience", strings.TrimSpace(key))
		}
	}
	return p, nil
}
