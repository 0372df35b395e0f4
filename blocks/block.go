package blocks

// Block is the single shared experience record for one cohort. Content
// is a bounded-size string mutated by any attached instance; the
// description carries the content policy for whoever writes it.
type Block struct {
	ID          string
	Label       string
	Description string
	Content     string
	AttachedTo  []string
}

// Attached reports whether the instance already has this block.
func (b *Block) Attached(instanceID string) bool {
	for _, id := range b.AttachedTo {
		if id == instanceID {
			return true
		}
	}
	return false
}

// Clone returns an independent copy.
func (b *Block) Clone() *Block {
	attached := make([]string, len(b.AttachedTo))
	copy(attached, b.AttachedTo)
	return &Block{
		ID:          b.ID,
		Label:       b.Label,
		Description: b.Description,
		Content:     b.Content,
		AttachedTo:  attached,
	}
}
