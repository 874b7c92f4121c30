package cli

type commandFileHost struct {
	upload commandFileHostUpload
	status commandFileHostStatus
}

func (c *commandFileHost) setup(svc appServices, parent commandParent) {
	cmd := parent.Command("filehost", "Commands to mirror galleries to secondary file hosts").Alias("fh")

	c.upload.setup(svc, cmd)
	c.status.setup(svc, cmd)
}
