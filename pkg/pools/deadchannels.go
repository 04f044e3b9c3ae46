package pools

import (
	"strconv"

	cmap "github.com/orcaman/concurrent-map"
)

func channelKey(channelID uint64) string {
	return strconv.FormatUint(channelID, 10)
}

// flaggedChannels is the advisory set of channel ids to repair on their next checkout.
type flaggedChannels struct {
	ids cmap.ConcurrentMap
}

func newFlaggedChannels() *flaggedChannels {
	return &flaggedChannels{ids: cmap.New()}
}

func (fc *flaggedChannels) flag(channelID uint64) {
	fc.ids.Set(channelKey(channelID), struct{}{})
}

// unflag reports whether the id was flagged.
func (fc *flaggedChannels) unflag(channelID uint64) bool {
	_, ok := fc.ids.Pop(channelKey(channelID))
	return ok
}

func (fc *flaggedChannels) isFlagged(channelID uint64) bool {
	return fc.ids.Has(channelKey(channelID))
}

func (fc *flaggedChannels) count() int {
	return fc.ids.Count()
}

// channelRegistry tracks every entry a ChannelPool created, checked out or not.
type channelRegistry struct {
	hosts cmap.ConcurrentMap
}

func newChannelRegistry() *channelRegistry {
	return &channelRegistry{hosts: cmap.New()}
}

func (cr *channelRegistry) add(chanHost *ChannelHost) {
	cr.hosts.Set(channelKey(chanHost.ID), chanHost)
}

// owns reports whether this exact entry was created by the registry's pool.
func (cr *channelRegistry) owns(chanHost *ChannelHost) bool {
	item, ok := cr.hosts.Get(channelKey(chanHost.ID))
	return ok && item.(*ChannelHost) == chanHost
}

func (cr *channelRegistry) all() []*ChannelHost {
	items := cr.hosts.Items()

	hosts := make([]*ChannelHost, 0, len(items))
	for _, item := range items {
		hosts = append(hosts, item.(*ChannelHost))
	}

	return hosts
}
