package ledger

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/govledger/internal/models"
	"github.com/smartdevs17/govledger/pkg/utils"
)

// SubmitCommunityTemplate publishes a governance parameter proposal that
// other users can vote for. It returns the template's index.
func (l *Ledger) SubmitCommunityTemplate(ctx context.Context, submitter common.Address, name string, params models.GovernanceParams) (index uint64, err error) {
	defer l.track("submit_community_template", time.Now(), &err)

	n := utf8.RuneCountInString(name)
	if n == 0 {
		return 0, validationError("Name required")
	}
	if n > l.config.MaxNameLength {
		return 0, validationError("Name too long")
	}
	if err := validateGovernanceParams(params); err != nil {
		return 0, err
	}

	l.communityMu.Lock()
	defer l.communityMu.Unlock()

	now := l.now()
	index = uint64(len(l.community))
	if err := l.emit(ctx, models.EventCommunityTemplateSubmitted, submitter, now, &CommunitySubmittedPayload{
		Index:  index,
		Name:   name,
		Params: params,
	}); err != nil {
		return 0, err
	}

	l.community = append(l.community, &models.CommunityTemplate{
		Index:        index,
		Name:         name,
		Submitter:    submitter,
		MinDuration:  params.MinDuration,
		QuorumPct:    params.QuorumPct,
		DelaySeconds: params.DelaySeconds,
		SubmittedAt:  now,
	})
	return index, nil
}

// VoteForTemplate records voter's single vote for a community template and
// credits the per-vote reward, split evenly between submitter and voter.
func (l *Ledger) VoteForTemplate(ctx context.Context, voter common.Address, index uint64) (err error) {
	defer l.track("vote_template", time.Now(), &err)

	l.communityMu.Lock()
	defer l.communityMu.Unlock()

	if index >= uint64(len(l.community)) {
		return notFound("Community template not found", fmt.Sprintf("%d", index))
	}
	if l.votes[index][voter] {
		return validationError("Already voted")
	}
	tpl := l.community[index]
	now := l.now()
	voterReward := l.config.RewardPerVote / 2
	submitterReward := l.config.RewardPerVote - voterReward

	if err := l.emit(ctx, models.EventTemplateRewarded, voter, now, &TemplateRewardedPayload{
		Index:           index,
		Submitter:       tpl.Submitter,
		SubmitterReward: submitterReward,
		VoterReward:     voterReward,
	}); err != nil {
		return err
	}

	if l.votes[index] == nil {
		l.votes[index] = make(map[common.Address]bool)
	}
	l.votes[index][voter] = true
	tpl.Votes++
	l.rewards[tpl.Submitter] = append(l.rewards[tpl.Submitter], &models.RewardEntry{
		TemplateIndex: index, Amount: submitterReward, Timestamp: now,
	})
	l.rewards[voter] = append(l.rewards[voter], &models.RewardEntry{
		TemplateIndex: index, Amount: voterReward, Timestamp: now,
	})

	l.logger.WithFields(logrus.Fields{
		"index": index,
		"voter": voter.Hex(),
		"votes": tpl.Votes,
	}).Info("Community template vote recorded")
	return nil
}

// HasVoted reports whether voter has voted for the template at index
func (l *Ledger) HasVoted(voter common.Address, index uint64) bool {
	l.communityMu.RLock()
	defer l.communityMu.RUnlock()
	return l.votes[index][voter]
}

// CommunityTemplates returns all submitted community templates
func (l *Ledger) CommunityTemplates() []models.CommunityTemplate {
	l.communityMu.RLock()
	defer l.communityMu.RUnlock()
	out := make([]models.CommunityTemplate, len(l.community))
	for i, t := range l.community {
		out[i] = *t
	}
	return out
}

// UserRewards returns user's reward entries, claimed or not
func (l *Ledger) UserRewards(user common.Address) []models.RewardEntry {
	l.communityMu.RLock()
	defer l.communityMu.RUnlock()
	out := make([]models.RewardEntry, len(l.rewards[user]))
	for i, r := range l.rewards[user] {
		out[i] = *r
	}
	return out
}

// ClaimRewards claims the reward entries at the given indices of user's
// reward list and returns the total. Every entry must be unclaimed and
// past the claim lock.
func (l *Ledger) ClaimRewards(ctx context.Context, user common.Address, indices []int) (total uint64, err error) {
	defer l.track("claim_rewards", time.Now(), &err)

	if len(indices) == 0 {
		return 0, validationError("No rewards selected")
	}

	l.communityMu.Lock()
	defer l.communityMu.Unlock()

	now := l.now()
	lock := uint64(l.config.ClaimLockPeriod / time.Second)
	entries := l.rewards[user]
	seen := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(entries) {
			return 0, notFound("Reward not found", fmt.Sprintf("%d", i))
		}
		if _, dup := seen[i]; dup {
			return 0, validationError("Duplicate reward index", fmt.Sprintf("%d", i))
		}
		seen[i] = struct{}{}
		if entries[i].Claimed {
			return 0, validationError("Already claimed", fmt.Sprintf("%d", i))
		}
		if now < entries[i].Timestamp+lock {
			return 0, utils.NewAppError(utils.ErrCodeLockActive, "Too early",
				fmt.Sprintf("reward %d claimable at %d", i, entries[i].Timestamp+lock))
		}
		total += entries[i].Amount
	}

	if err := l.emit(ctx, models.EventRewardsClaimed, user, now, &RewardsClaimedPayload{
		Indices: indices,
		Amount:  total,
	}); err != nil {
		return 0, err
	}
	for _, i := range indices {
		entries[i].Claimed = true
	}
	return total, nil
}
