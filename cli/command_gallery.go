package cli

type commandGallery struct {
	add    commandGalleryAdd
	list   commandGalleryList
	remove commandGalleryRemove
	retry  commandGalleryRetry
	set    commandGallerySet
}

func (c *commandGallery) setup(svc appServices, parent commandParent) {
	cmd := parent.Command("gallery", "Commands to manage the gallery queue").Alias("g")

	c.add.setup(svc, cmd)
	c.list.setup(svc, cmd)
	c.remove.setup(svc, cmd)
	c.retry.setup(svc, cmd)
	c.set.setup(svc, cmd)
}
