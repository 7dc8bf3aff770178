package marketing

import (
	"errors"
	"fmt"

	"github.com/speedai/speedai/app/models"
)

var ErrSegmentRequired = errors.New("segment target requires a segment id")

// ResolveRecipients returns the contacts a campaign goes to. Contacts that
// did not opt in for the campaign channel are skipped.
func (s *Service) ResolveRecipients(userID uint, campaign *models.MarketingCampaign) ([]models.MarketingContact, error) {
	var filter models.ContactFilter
	switch campaign.TargetType {
	case models.TARGET_ALL, "":
	case models.TARGET_SEGMENT:
		if campaign.SegmentID == nil {
			return nil, ErrSegmentRequired
		}
		seg, err := s.repo.GetSegment(userID, *campaign.SegmentID)
		if err != nil {
			return nil, err
		}
		if filter, err = models.ParseContactFilter(seg.Filters); err != nil {
			return nil, fmt.Errorf("segment %d filter: %w", seg.ID, err)
		}
	case models.TARGET_FILTERS:
		var err error
		if filter, err = models.ParseContactFilter(campaign.Filters); err != nil {
			return nil, fmt.Errorf("campaign filter: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown campaign target %q", campaign.TargetType)
	}
	filter.Channel = campaign.Channel

	contacts, err := s.repo.FindContacts(userID, filter)
	if err != nil {
		return nil, err
	}
	out := contacts[:0]
	for _, c := range contacts {
		if c.AcceptsChannel(campaign.Channel) {
			out = append(out, c)
		}
	}
	return out, nil
}
